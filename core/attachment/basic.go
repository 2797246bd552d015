package attachment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"

	"github.com/docuform-tech/docuform/core/assets"
	"github.com/docuform-tech/docuform/core/docdb"
)

// Basic stores the uploaded file under a generated name and records the
// name, the extension and a sha256 content hash in the payload.
type Basic struct {
	driver assets.Driver
}

// NewBasic returns a processor writing to the given asset driver.
func NewBasic(driver assets.Driver) *Basic {
	return &Basic{driver: driver}
}

// Process implements Processor.
func (b *Basic) Process(ctx context.Context, payload docdb.Document, file multipart.File, header *multipart.FileHeader) (bool, error) {
	if file == nil || header == nil {
		return false, nil
	}
	defer file.Close()

	dot := strings.LastIndexByte(header.Filename, '.')
	if dot < 0 || dot == len(header.Filename)-1 {
		return false, nil
	}
	extension := strings.ToLower(header.Filename[dot+1:])

	data, err := io.ReadAll(file)
	if err != nil {
		return false, fmt.Errorf("cannot read upload: %w", err)
	}
	if len(data) == 0 {
		return false, fmt.Errorf("upload is empty")
	}

	sum := sha256.Sum256(data)
	name := uuid.New().String()

	payload["file_name"] = name
	payload["extension"] = extension
	payload["hash"] = hex.EncodeToString(sum[:])

	if err := b.driver.Put(ctx, name+"."+extension, data); err != nil {
		return false, err
	}
	return true, nil
}

// Remove implements Remover. Records without the derived fields, for
// example created without an upload, are left alone.
func (b *Basic) Remove(ctx context.Context, record docdb.Document) error {
	name, _ := record["file_name"].(string)
	extension, _ := record["extension"].(string)
	if name == "" || extension == "" {
		return nil
	}
	return b.driver.Delete(ctx, name+"."+extension)
}
