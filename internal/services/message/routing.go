package message

import (
	"context"

	"privcal/internal/domain"
	"privcal/internal/relay"
)

// PublicRelays returns the relays a public event by author goes to: the
// author's general write relays plus each participant's general read
// relays, taken round-robin so every party is represented before any list
// contributes a second relay, and capped at limit.
func PublicRelays(
	ctx context.Context,
	resolver domain.RelayResolver,
	author string,
	participants []string,
	limit int,
) []string {
	lists := [][]string{resolver.WriteRelays(ctx, author, domain.PurposeGeneral)}
	for _, p := range participants {
		if p == author {
			continue
		}
		lists = append(lists, resolver.ReadRelays(ctx, p, domain.PurposeGeneral))
	}
	return roundRobin(lists, limit)
}

// InboxRelays returns where pubkey listens for private envelopes: its
// general read relays followed by its private read relays.
func InboxRelays(ctx context.Context, resolver domain.RelayResolver, pubkey string) []string {
	urls := resolver.ReadRelays(ctx, pubkey, domain.PurposeGeneral)
	urls = append(urls, resolver.ReadRelays(ctx, pubkey, domain.PurposePrivate)...)
	return relay.NormalizeURLs(urls)
}

func roundRobin(lists [][]string, limit int) []string {
	for i := range lists {
		lists[i] = relay.NormalizeURLs(lists[i])
	}
	seen := make(map[string]bool)
	var out []string
	for depth := 0; ; depth++ {
		progressed := false
		for _, l := range lists {
			if depth >= len(l) {
				continue
			}
			progressed = true
			if seen[l[depth]] {
				continue
			}
			seen[l[depth]] = true
			out = append(out, l[depth])
			if limit > 0 && len(out) == limit {
				return out
			}
		}
		if !progressed {
			return out
		}
	}
}
