package grpccas

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/sidecast/storage"
)

// wireErrors pairs each storage sentinel with the status code it travels as.
// The table is read in both directions.
var wireErrors = []struct {
	err  error
	code codes.Code
}{
	{storage.ErrNotFound, codes.NotFound},
	{storage.ErrInvalidCID, codes.InvalidArgument},
	{storage.ErrCIDMismatch, codes.DataLoss},
	{storage.ErrImmutable, codes.AlreadyExists},
	// The backend lacks the capability, or the server predates the method.
	{storage.ErrUnsupported, codes.Unimplemented},
}

// mapErr converts a backend error into a gRPC status on the server side.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	for _, w := range wireErrors {
		if errors.Is(err, w.err) {
			return status.Error(w.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// mapRPC converts a client-side RPC error back into a storage sentinel.
// Unknown codes keep the status error, unless its message is exactly a
// sentinel's text.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, w := range wireErrors {
		if st.Code() == w.code {
			return w.err
		}
	}
	for _, w := range wireErrors {
		if st.Message() == w.err.Error() {
			return w.err
		}
	}
	return err
}
