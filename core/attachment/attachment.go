/*Package attachment processes file uploads that accompany record creation
or update. A processor derives fields from the uploaded file and adds them
to the record payload before it is persisted.
*/
package attachment

import (
	"context"
	"mime/multipart"

	"github.com/docuform-tech/docuform/core/docdb"
)

// Processor derives record fields from an uploaded file and stores the
// file's content. Process mutates payload in place. It returns false when
// the upload cannot be processed, for example because the filename carries
// no usable extension, and an error when the upload is invalid or storage
// fails. Record persistence and asset storage are not transactional; a
// record write that fails after Process leaves the stored asset behind.
type Processor interface {
	Process(ctx context.Context, payload docdb.Document, file multipart.File, header *multipart.FileHeader) (bool, error)
}

// Remover is implemented by processors that can also remove the stored
// content of a record's attachment, given the record as it was persisted.
// Removal is best effort; the record is deleted regardless.
type Remover interface {
	Remove(ctx context.Context, record docdb.Document) error
}
