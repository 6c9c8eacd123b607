package grpccas

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/sidecast/capability"
	"xdao.co/sidecast/cidutil"
	"xdao.co/sidecast/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
//
// Optional methods sidecast CAS on every call; a backend that does not
// advertise the capability answers codes.Unimplemented.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	b := in.GetValue()
	// Enforce the repo's CID contract on the server side too.
	expected, err := cidutil.Sum(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.CAS.Put(b)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Equals(expected) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := decodeCID(in)
	if err != nil {
		return nil, err
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := decodeCID(in)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	l, ok := capability.Sidecast[storage.Lister](s.CAS)
	if !ok {
		return nil, unsupported("List")
	}
	ids, err := l.List()
	if err != nil {
		return nil, mapErr(err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(ids))}
	for _, id := range ids {
		out.Values = append(out.Values, structpb.NewStringValue(id.String()))
	}
	return out, nil
}

func (s *Server) Size(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	sz, ok := capability.Sidecast[storage.Sizer](s.CAS)
	if !ok {
		return nil, unsupported("Size")
	}
	id, err := decodeCID(in)
	if err != nil {
		return nil, err
	}
	n, err := sz.Size(id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Int64(n), nil
}

func (s *Server) Pin(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return s.pinOp(in, "Pin", storage.Pinner.Pin)
}

func (s *Server) Unpin(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return s.pinOp(in, "Unpin", storage.Pinner.Unpin)
}

func (s *Server) pinOp(in *wrapperspb.StringValue, method string, op func(storage.Pinner, cid.Cid) error) (*emptypb.Empty, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p, ok := capability.SidecastMut[storage.Pinner](s.CAS)
	if !ok {
		return nil, unsupported(method)
	}
	id, err := decodeCID(in)
	if err != nil {
		return nil, err
	}
	if err := op(p, id); err != nil {
		return nil, mapErr(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Pinned(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	p, ok := capability.Sidecast[storage.Pinner](s.CAS)
	if !ok {
		return nil, unsupported("Pinned")
	}
	id, err := decodeCID(in)
	if err != nil {
		return nil, err
	}
	pinned, err := p.Pinned(id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(pinned), nil
}

// Capabilities reports the storage capabilities of the backing CAS.
func (s *Server) Capabilities(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	names := storage.Capabilities(s.CAS)
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(names))}
	for _, n := range names {
		out.Values = append(out.Values, structpb.NewStringValue(n))
	}
	return out, nil
}

func (s *Server) ready() error {
	if s == nil || s.CAS == nil {
		return status.Error(codes.FailedPrecondition, "missing CAS")
	}
	return nil
}

func decodeCID(in *wrapperspb.StringValue) (cid.Cid, error) {
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}

func unsupported(method string) error {
	return status.Errorf(codes.Unimplemented, "%s: %s", method, storage.ErrUnsupported.Error())
}
