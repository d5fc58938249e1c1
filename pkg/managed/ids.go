package managed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// IDs is the optional list of row identifiers returned by an add. The zero value is absent,
// which is distinct from a present list with no elements.
type IDs struct {
	ids     []string
	present bool
}

// NoIDs returns the absent identifier list.
func NoIDs() IDs { return IDs{} }

// SomeIDs returns a present identifier list holding a copy of ids. SomeIDs() is present and empty.
func SomeIDs(ids ...string) IDs {
	c := make([]string, len(ids))
	copy(c, ids)
	return IDs{ids: c, present: true}
}

func (i IDs) Present() bool { return i.present }

// Values returns a copy of the identifiers and whether they were present.
func (i IDs) Values() ([]string, bool) {
	if !i.present {
		return nil, false
	}
	return slices.Clone(i.ids), true
}

func (i IDs) Len() int { return len(i.ids) }

// IsZero lets `omitzero` drop absent ids from encoded replies.
func (i IDs) IsZero() bool { return !i.present }

func (i IDs) Equal(o IDs) bool {
	return i.present == o.present && slices.Equal(i.ids, o.ids)
}

func (i IDs) MarshalJSON() ([]byte, error) {
	if !i.present {
		return []byte("null"), nil
	}
	return json.Marshal(i.ids)
}

func (i *IDs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*i = IDs{}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to decode ids: %w", err)
	}
	*i = SomeIDs(ids...)
	return nil
}

func (i IDs) String() string {
	if !i.present {
		return "None"
	}
	return fmt.Sprintf("%q", i.ids)
}
