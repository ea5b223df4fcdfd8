// Package relay implements the global object identifier encoding used by the
// node field, and the Node interface objects implement to be refetchable.
package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	schema "github.com/hanpama/opgraph/internal/schema"
)

var ErrInvalidGlobalID = errors.New("invalid global id")

var encoding = base64.RawURLEncoding

// ToGlobalID encodes typeName and nativeID into an opaque identifier.
func ToGlobalID(typeName, nativeID string) string {
	return encoding.EncodeToString([]byte(typeName + ":" + nativeID))
}

// FromGlobalID decodes an identifier produced by ToGlobalID. The native id may
// itself contain colons; the type name may not.
func FromGlobalID(id string) (typeName, nativeID string, err error) {
	raw, err := encoding.DecodeString(id)
	if err != nil || !utf8.Valid(raw) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGlobalID, id)
	}
	typeName, nativeID, ok := strings.Cut(string(raw), ":")
	if !ok || typeName == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGlobalID, id)
	}
	return typeName, nativeID, nil
}

const NodeInterfaceName = "Node"

var nodeInterface = schema.NewType(NodeInterfaceName, schema.TypeKindInterface, "An object with an ID").
	AddField(schema.NewField("id", "ID of the object.", schema.NonNullType(schema.RefTo(schema.IDType))))

// NodeInterface returns the shared Node interface definition. Object types
// implementing it are registered as possible types by the assembler.
func NodeInterface() *schema.Type { return nodeInterface }
