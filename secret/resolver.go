package secret

import (
	"errors"
	"fmt"
)

// Level is a coarse authorization tier that selects its own secret pair.
type Level string

const (
	// LevelBearer is the tier for regular users.
	LevelBearer Level = "Bearer"
	// LevelSystem is the tier for administrators.
	LevelSystem Level = "System"
)

var (
	// ErrMissing reports an absent secret or an absent level.
	ErrMissing = errors.New("signing secret missing")
	// ErrNotDistinct reports two slots configured with the same secret.
	ErrNotDistinct = errors.New("signing secrets must be distinct")
	// ErrUnknownLevel reports a lookup for a level that is not configured.
	ErrUnknownLevel = errors.New("unknown signature level")
)

// Pair holds the access and refresh secrets of one level.
type Pair struct {
	Access  string
	Refresh string
}

// Resolver maps a [Level] to its [Pair]. It is immutable after [New].
type Resolver struct {
	pairs map[Level]Pair
}

// New validates pairs and returns a resolver.
//
// Both [LevelBearer] and [LevelSystem] must be present with non-empty
// secrets, and all four secrets must differ from each other so a token
// signed for one level or type can never verify as another.
func New(pairs map[Level]Pair) (*Resolver, error) {
	required := []Level{LevelBearer, LevelSystem}
	copied := make(map[Level]Pair, len(required))
	seen := make(map[string]string, len(required)*2)

	for _, level := range required {
		pair, ok := pairs[level]
		if !ok {
			return nil, fmt.Errorf("%w: level %s not configured", ErrMissing, level)
		}
		if pair.Access == "" {
			return nil, fmt.Errorf("%w: %s access secret", ErrMissing, level)
		}
		if pair.Refresh == "" {
			return nil, fmt.Errorf("%w: %s refresh secret", ErrMissing, level)
		}

		for slot, value := range map[string]string{
			string(level) + " access":  pair.Access,
			string(level) + " refresh": pair.Refresh,
		} {
			if other, dup := seen[value]; dup {
				return nil, fmt.Errorf("%w: %s and %s", ErrNotDistinct, other, slot)
			}
			seen[value] = slot
		}
		copied[level] = pair
	}

	return &Resolver{pairs: copied}, nil
}

// Pair returns the secret pair for level.
func (r *Resolver) Pair(level Level) (Pair, error) {
	if r == nil {
		return Pair{}, ErrMissing
	}
	pair, ok := r.pairs[level]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return pair, nil
}

// Key returns the raw signing key for level. refresh selects the refresh
// secret instead of the access secret.
func (r *Resolver) Key(level Level, refresh bool) ([]byte, error) {
	pair, err := r.Pair(level)
	if err != nil {
		return nil, err
	}
	if refresh {
		return []byte(pair.Refresh), nil
	}
	return []byte(pair.Access), nil
}

// Known reports whether level is one of the configured levels.
func Known(level string) bool {
	switch Level(level) {
	case LevelBearer, LevelSystem:
		return true
	default:
		return false
	}
}
