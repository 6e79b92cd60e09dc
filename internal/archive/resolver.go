package archive

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ytarchive/internal/youtube"
)

// QueryKind forces how a channel query is interpreted.
type QueryKind string

const (
	KindAuto   QueryKind = ""
	KindID     QueryKind = "id"
	KindUser   QueryKind = "user"
	KindURL    QueryKind = "url"
	KindHandle QueryKind = "handle"
)

// Lookup is the remote lookup a Query resolves through.
type Lookup int

const (
	LookupID Lookup = iota
	LookupUsername
	LookupHandle
)

func (l Lookup) String() string {
	switch l {
	case LookupID:
		return "id"
	case LookupUsername:
		return "username"
	case LookupHandle:
		return "handle"
	}
	return fmt.Sprintf("lookup(%d)", int(l))
}

// Query is a classified channel reference.
type Query struct {
	Input  string
	Lookup Lookup
	Value  string
}

var (
	userPathRe    = regexp.MustCompile(`(?i)/user/([^/?#]+)`)
	channelPathRe = regexp.MustCompile(`(?i)/channel/([^/?#]+)`)
	channelIDRe   = regexp.MustCompile(`^UC[\w-]{22}$`)
)

// Classify interprets input as a channel URL, @handle, channel ID or legacy
// username, in that order.
func Classify(input string) (Query, error) {
	return ClassifyAs(input, KindAuto)
}

// ClassifyAs interprets input as kind. KindAuto behaves like Classify.
func ClassifyAs(input string, kind QueryKind) (Query, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return Query{}, &ResolutionError{Query: input, Err: ErrEmptyQuery}
	}
	q := Query{Input: in, Value: in}

	switch kind {
	case KindID:
		q.Lookup = LookupID
		return q, nil
	case KindUser:
		q.Lookup = LookupUsername
		return q, nil
	case KindHandle:
		q.Lookup = LookupHandle
		if !strings.HasPrefix(in, "@") {
			q.Value = "@" + in
		}
		return q, nil
	case KindURL:
		return classifyURL(q)
	case KindAuto:
	default:
		return Query{}, &ResolutionError{Query: input, Err: fmt.Errorf("unknown query kind %q", kind)}
	}

	switch {
	case strings.Contains(in, "/"):
		return classifyURL(q)
	case strings.HasPrefix(in, "@"):
		q.Lookup = LookupHandle
	case channelIDRe.MatchString(in):
		q.Lookup = LookupID
	default:
		q.Lookup = LookupUsername
	}
	return q, nil
}

func classifyURL(q Query) (Query, error) {
	if m := userPathRe.FindStringSubmatch(q.Input); m != nil {
		q.Lookup, q.Value = LookupUsername, m[1]
		return q, nil
	}
	if m := channelPathRe.FindStringSubmatch(q.Input); m != nil {
		q.Lookup, q.Value = LookupID, m[1]
		return q, nil
	}
	return Query{}, &ResolutionError{Query: q.Input, Err: ErrUnsupportedURL}
}

// Resolver turns queries into channels.
type Resolver struct {
	channels interface {
		ListChannels(ctx context.Context, f youtube.ChannelFilter, cursor string) (youtube.Page[youtube.Channel], error)
	}
}

// NewResolver creates a Resolver over remote.
func NewResolver(remote youtube.Client) *Resolver {
	return &Resolver{channels: remote}
}

// Resolve performs exactly the lookup q names. Every failure is a
// *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, q Query) (youtube.Channel, error) {
	var f youtube.ChannelFilter
	switch q.Lookup {
	case LookupID:
		f.IDs = []string{q.Value}
	case LookupUsername:
		f.Username = q.Value
	case LookupHandle:
		f.Handle = q.Value
	}

	page, err := r.channels.ListChannels(ctx, f, "")
	if err != nil {
		return youtube.Channel{}, &ResolutionError{Query: q.Input, Err: err}
	}
	if len(page.Items) == 0 {
		return youtube.Channel{}, &ResolutionError{Query: q.Input, Err: fmt.Errorf("%w: %s %s", ErrChannelNotFound, q.Lookup, q.Value)}
	}
	return page.Items[0], nil
}
