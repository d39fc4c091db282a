package attachments

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/types"
)

const maxUploadSize = 25 << 20 // 25 MiB

// Store keeps message attachments in object storage. Messages reference the
// returned object paths; the objects themselves never travel over the
// websocket.
type Store struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewStore creates an attachment store on the given bucket. The bucket itself
// is provisioned by the resource bundle at startup.
func NewStore(client *minio.Client, bucket string, logger zerolog.Logger) *Store {
	return &Store{client: client, bucket: bucket, logger: logger}
}

// Handler returns the HTTP handler for attachment uploads and downloads.
// Every request must already carry a valid handshake token; the same
// authenticator guards the websocket endpoint.
func (s *Store) Handler(auth interface {
	Authenticate(r *http.Request) (types.Identity, error)
}) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /attachments", func(w http.ResponseWriter, r *http.Request) {
		identity, err := auth.Authenticate(r)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		s.upload(w, r, identity)
	})
	mux.HandleFunc("GET /attachments/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.Authenticate(r); err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		s.download(w, r)
	})
	return mux
}

func (s *Store) upload(w http.ResponseWriter, r *http.Request, identity types.Identity) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectPath := fmt.Sprintf("%s/%s%s", identity.ID, uuid.NewString(), path.Ext(header.Filename))
	_, err = s.client.PutObject(r.Context(), s.bucket, objectPath, file, header.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("object", objectPath).Msg("attachment upload failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"path": objectPath})
}

func (s *Store) download(w http.ResponseWriter, r *http.Request) {
	objectPath := r.URL.Path[len("/attachments/"):]
	if objectPath == "" {
		http.Error(w, "object path is required", http.StatusBadRequest)
		return
	}

	url, err := s.client.PresignedGetObject(r.Context(), s.bucket, objectPath, 15*time.Minute, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("object", objectPath).Msg("presign failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url.String(), http.StatusTemporaryRedirect)
}
