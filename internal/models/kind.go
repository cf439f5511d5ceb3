package models

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Kind distinguishes media files from their metadata sidecars.
type Kind string

const (
	KindMedia   Kind = "media"
	KindSidecar Kind = "sidecar"
)

const (
	sidecarExt          = ".json"
	supplementalSidecar = ".supplemental-metadata"
)

// duplicateSuffix matches Takeout's "a.jpg(1)" sidecar naming for the media file "a(1).jpg".
var duplicateSuffix = regexp.MustCompile(`^(.*)(\.[^./]+)\((\d+)\)$`)

// Opposite returns the kind an entry pairs with.
func (k Kind) Opposite() Kind {
	if k == KindSidecar {
		return KindMedia
	}
	return KindSidecar
}

// ParseKind converts a persisted value back into a [Kind].
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMedia, KindSidecar:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown kind: %q", s)
	}
}

// KindFromName classifies an entry by its file name: a .json suffix (any case) marks a sidecar.
func KindFromName(name string) Kind {
	if strings.EqualFold(path.Ext(name), sidecarExt) {
		return KindSidecar
	}
	return KindMedia
}

// PairingKey returns the key shared by a media entry and its sidecar.
//
// entryPath is the slash separated path inside the archive. Sidecars drop ".json" and Google's
// ".supplemental-metadata" infix (including the truncated forms Takeout writes for long names),
// so "Photos/a.jpg.supplemental-metadata.json" and "Photos/a.jpg.json" both key to "Photos/a.jpg".
// A duplicate sidecar "Photos/a.jpg(1).json" keys to "Photos/a(1).jpg". Media keys are their path
// unchanged.
func PairingKey(entryPath string) string {
	p := path.Clean(strings.ReplaceAll(entryPath, "\\", "/"))
	if KindFromName(p) != KindSidecar {
		return p
	}

	p = p[:len(p)-len(sidecarExt)]
	if i := strings.LastIndex(p, "."); i >= 0 && !strings.Contains(p[i:], "/") {
		seg := strings.ToLower(p[i:])
		if len(seg) >= len(".supp") && strings.HasPrefix(supplementalSidecar, seg) {
			p = p[:i]
		}
	}

	if m := duplicateSuffix.FindStringSubmatch(p); m != nil {
		p = m[1] + "(" + m[3] + ")" + m[2]
	}
	return p
}
