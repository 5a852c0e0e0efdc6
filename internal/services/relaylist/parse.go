package relaylist

import (
	"privcal/internal/domain"
	"privcal/internal/relay"
)

const (
	markerRead  = "read"
	markerWrite = "write"
)

// tagName returns the tag that carries relay URLs for purpose.
func tagName(purpose domain.Purpose) string {
	if purpose == domain.PurposePrivate {
		return "relay"
	}
	return "r"
}

// Parse extracts preferences from a relay list event. Invalid URLs are
// dropped. Duplicates merge their read and write flags. A missing marker
// means both.
func Parse(ev domain.Event, purpose domain.Purpose) []domain.RelayPreference {
	name := tagName(purpose)
	index := make(map[string]int)
	var out []domain.RelayPreference
	for _, t := range ev.Tags {
		if t.Key() != name {
			continue
		}
		u, err := relay.NormalizeURL(t.Value())
		if err != nil {
			continue
		}
		read, write := true, true
		if len(t) > 2 {
			switch t[2] {
			case markerRead:
				write = false
			case markerWrite:
				read = false
			}
		}
		if i, ok := index[u]; ok {
			out[i].Read = out[i].Read || read
			out[i].Write = out[i].Write || write
			continue
		}
		index[u] = len(out)
		out = append(out, domain.RelayPreference{URL: u, Read: read, Write: write})
	}
	return out
}

// Tags renders prefs as relay list tags for purpose. Entries with neither
// flag set are skipped.
func Tags(prefs []domain.RelayPreference, purpose domain.Purpose) domain.Tags {
	name := tagName(purpose)
	tags := make(domain.Tags, 0, len(prefs))
	for _, p := range prefs {
		switch {
		case p.Read && p.Write:
			tags = append(tags, domain.Tag{name, p.URL})
		case p.Read:
			tags = append(tags, domain.Tag{name, p.URL, markerRead})
		case p.Write:
			tags = append(tags, domain.Tag{name, p.URL, markerWrite})
		}
	}
	return tags
}

// Defaults turns plain URLs into read-write preferences.
func Defaults(urls []string) []domain.RelayPreference {
	urls = relay.NormalizeURLs(urls)
	out := make([]domain.RelayPreference, len(urls))
	for i, u := range urls {
		out[i] = domain.RelayPreference{URL: u, Read: true, Write: true}
	}
	return out
}

func readURLs(prefs []domain.RelayPreference) []string {
	var out []string
	for _, p := range prefs {
		if p.Read {
			out = append(out, p.URL)
		}
	}
	return out
}

func writeURLs(prefs []domain.RelayPreference) []string {
	var out []string
	for _, p := range prefs {
		if p.Write {
			out = append(out, p.URL)
		}
	}
	return out
}
