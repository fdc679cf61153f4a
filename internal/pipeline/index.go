package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/crimson-sun/beacon/internal/model"
)

// Index field names are part of the external query contract: a key is typed
// by a one-letter suffix so the same custom-data name can never collide
// across value shapes.
const (
	suffixString    = "-s"
	suffixNumber    = "-n"
	suffixBool      = "-b"
	suffixDate      = "-d"
	suffixReference = "-r"
)

var indexKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// lowerCaser folds keys Unicode-correctly, not just ASCII.
var lowerCaser = cases.Lower(language.Und)

// reserved custom-data names that would shadow first-class event fields.
var reservedIndexKeys = map[string]struct{}{
	"source": {},
	"tags":   {},
}

// indexData projects each event's free-form Data entries into typed index
// fields on Event.Idx. Unusable keys and shapes are dropped without failing
// the event.
func (p *Pipeline) indexData(ctx context.Context, batch []*Context) ([]*Context, error) {
	for _, c := range batch {
		if !c.live() || len(c.Event.Data) == 0 {
			continue
		}
		indexEventData(c.Event)
	}
	return batch, nil
}

func indexEventData(ev *model.Event) {
	for key, value := range ev.Data {
		if strings.HasPrefix(key, model.RefKeyPrefix) {
			name, ok := sanitizeIndexKey(strings.TrimPrefix(key, model.RefKeyPrefix))
			if !ok {
				continue
			}
			setIndex(ev, name+suffixReference, fmt.Sprintf("%v", value))
			continue
		}
		if strings.HasPrefix(key, "@") {
			continue
		}
		name, ok := sanitizeIndexKey(key)
		if !ok {
			continue
		}
		if typed, suffix, ok := typeIndexValue(value); ok {
			setIndex(ev, name+suffix, typed)
		}
	}
}

func setIndex(ev *model.Event, field string, value any) {
	if ev.Idx == nil {
		ev.Idx = make(map[string]any)
	}
	ev.Idx[field] = value
}

func sanitizeIndexKey(key string) (string, bool) {
	key = lowerCaser.String(strings.TrimSpace(key))
	if !indexKeyPattern.MatchString(key) {
		return "", false
	}
	if _, reserved := reservedIndexKeys[key]; reserved {
		return "", false
	}
	return key, true
}

// typeIndexValue picks the typed field suffix from the runtime shape of the
// value. Strings are inspected for true/false, number and RFC 3339 date
// literals before falling back to plain text; structured shapes are not
// indexable.
func typeIndexValue(value any) (any, string, bool) {
	switch v := value.(type) {
	case bool:
		return v, suffixBool, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v, suffixNumber, true
	case float32, float64:
		return v, suffixNumber, true
	case time.Time:
		return v, suffixDate, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, "", false
		}
		// Only the spelled-out literals count as booleans; "1" or "t"
		// must stay numeric or textual.
		if strings.EqualFold(s, "true") {
			return true, suffixBool, true
		}
		if strings.EqualFold(s, "false") {
			return false, suffixBool, true
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, suffixNumber, true
		}
		if d, err := time.Parse(time.RFC3339, s); err == nil {
			return d, suffixDate, true
		}
		return s, suffixString, true
	default:
		return nil, "", false
	}
}
