package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/productstudio/studio/internal/types"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{types.NotFound("product %s", "x"), http.StatusNotFound},
		{types.Conflict("slug taken"), http.StatusConflict},
		{types.InvalidTransition("job is processing"), http.StatusConflict},
		{types.PreconditionFailed("no active specification"), http.StatusPreconditionFailed},
		{types.LimitExceeded("too many images"), http.StatusBadRequest},
		{types.InvalidArgument("bad ratio"), http.StatusBadRequest},
		{types.ExternalFailure("store file", errors.New("s3 down")), http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", types.NotFound("job")), http.StatusNotFound},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
