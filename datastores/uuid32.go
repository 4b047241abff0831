package datastores

import (
	"encoding/base32"
	"errors"

	"github.com/google/uuid"
)

// Document ids are random UUIDs written as 26 unpadded base32 characters.
var (
	idEncoding   = base32.StdEncoding.WithPadding(base32.NoPadding) //nolint: gochecknoglobals,nolintlint
	idEncodedLen = idEncoding.EncodedLen(len(uuid.UUID{}))          //nolint: gochecknoglobals,nolintlint
)

var errIDLength = errors.New("invalid document id length")

func newDocumentID() DocumentID {
	u := uuid.Must(uuid.NewRandom())
	return DocumentID(idEncoding.EncodeToString(u[:]))
}

// ParseDocumentID checks that s is an identifier this package could have generated.
func ParseDocumentID(s string) (DocumentID, error) {
	if len(s) != idEncodedLen {
		return "", errIDLength
	}
	var u uuid.UUID
	if _, err := idEncoding.Decode(u[:], []byte(s)); err != nil {
		return "", err
	}
	return DocumentID(s), nil
}
