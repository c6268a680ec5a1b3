package detector

import (
	"context"
	"fmt"
	"log"

	"github.com/kozaktomas/face-groups/internal/fingerprint"
)

// Remote detects faces through the embedding server's /embed/face endpoint.
type Remote struct {
	client *fingerprint.EmbeddingClient
}

// NewRemote creates a remote detector using client.
func NewRemote(client *fingerprint.EmbeddingClient) *Remote {
	return &Remote{client: client}
}

// RemoteLoader returns a Loader that waits until the embedding server answers
// its health check.
func RemoteLoader(client *fingerprint.EmbeddingClient) Loader {
	return func(ctx context.Context) (Detector, error) {
		log.Printf("Waiting for embedding server at %s", client.BaseURL())
		if err := client.WaitHealthy(ctx); err != nil {
			return nil, err
		}
		return NewRemote(client), nil
	}
}

// Detect sends the image to the embedding server. Faces keep the server's
// order.
func (r *Remote) Detect(ctx context.Context, jpegData []byte) ([]Face, error) {
	resp, err := r.client.ComputeFaceEmbeddings(ctx, jpegData)
	if err != nil {
		return nil, fmt.Errorf("remote face embeddings: %w", err)
	}

	faces := make([]Face, len(resp.Faces))
	for i, f := range resp.Faces {
		faces[i] = Face{
			Descriptor: f.Embedding,
			BBox:       f.BBox,
			Score:      f.DetScore,
		}
	}
	return faces, nil
}
