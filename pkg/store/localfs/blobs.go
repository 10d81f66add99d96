package localfs

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/spf13/afero"
)

// blobArea stores blob payloads content-addressed on an afero filesystem.
// Writes are idempotent, so blobs written ahead of a commit that then loses
// the head race are simply reused or left unreferenced.
type blobArea struct {
	fs afero.Fs
}

func blobDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (b blobArea) path(digest string) string {
	// two level fan-out keeps directories small
	return filepath.Join(digest[:2], digest)
}

func (b blobArea) put(data []byte) (string, error) {
	digest := blobDigest(data)
	pth := b.path(digest)

	if ok, _ := afero.Exists(b.fs, pth); ok {
		return digest, nil
	}
	if err := b.fs.MkdirAll(filepath.Dir(pth), 0700); err != nil {
		return "", err
	}
	if err := afero.WriteFile(b.fs, pth, data, 0600); err != nil {
		return "", err
	}
	return digest, nil
}

func (b blobArea) get(digest string) ([]byte, error) {
	data, err := afero.ReadFile(b.fs, b.path(digest))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %v", digest, err)
	}
	return data, nil
}
