package journals

import (
	"fmt"

	"github.com/google/uuid"
)

// Namespace for deriving supporting-document references. Changing it would
// re-key every respaldo link, so it is fixed forever.
var sourceNamespace = uuid.MustParse("6f1c2a9e-8c43-4be1-9d6a-3f0d5b7c41aa")

// SourceRef derives the respaldo reference for a posting from its source
// document. The derivation is deterministic: posting the same document twice
// yields the same reference, so the unique constraint on documentos_respaldo
// rejects the duplicate instead of writing a second entry.
func SourceRef(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(fmt.Sprintf("%s:%d", module, id)))
}
