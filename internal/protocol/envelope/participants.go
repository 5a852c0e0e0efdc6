package envelope

import (
	"privcal/internal/crypto"
	"privcal/internal/domain"
)

// ExtractParticipants returns the author followed by every distinct valid
// p-tagged pubkey. The result is never empty for a rumor with an author.
func ExtractParticipants(r domain.Rumor) []string {
	seen := map[string]bool{r.PubKey: true}
	out := []string{r.PubKey}
	for _, pk := range r.Tags.Values("p") {
		if seen[pk] || !crypto.ValidPublicKey(pk) {
			continue
		}
		seen[pk] = true
		out = append(out, pk)
	}
	return out
}
