package ledger

// ListOptions controls how records are selected when listing the ledger.
type ListOptions struct {
	UserID   string
	Statuses []Status
	Limit    int
	Offset   int
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	opts.Limit = clampLimit(opts.Limit)
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Statuses = normalizeStatuses(opts.Statuses)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithUser restricts results to records owned by userID.
func WithUser(userID string) ListOption {
	return func(opts *ListOptions) {
		opts.UserID = userID
	}
}

// WithStatuses filters records by the provided statuses.
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithLimit limits the number of records returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching records.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// BuildListOptions applies option functions on top of defaults.
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeStatuses(input []Status) []Status {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[Status]struct{}, len(input))
	result := make([]Status, 0, len(input))
	for _, status := range input {
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
