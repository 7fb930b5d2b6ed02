package db_test

import (
	"context"
	"io"

	"github.com/orrn/printdesk/internal/core"
)

type stubArtifacts struct{}

func (stubArtifacts) Store(ctx context.Context, name, contentType string, r io.Reader) (core.Artifact, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return core.Artifact{}, err
	}
	return core.Artifact{Ref: "stub:" + name, Size: n, ContentType: contentType}, nil
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
