// Package assets resolves abstract media items into concrete remote image
// locations and loads them with per-candidate retry, cross-candidate fallback,
// and two-tier caching.
package assets

import (
	"fmt"
	"strconv"
	"strings"
)

// ImageKind identifies a Jellyfin image type on the server.
type ImageKind string

const (
	KindPrimary  ImageKind = "Primary"
	KindBackdrop ImageKind = "Backdrop"
	KindThumb    ImageKind = "Thumb"
)

// Role is the visual purpose an image serves in the client. It drives the
// preferred dimensions and the fallback order of candidate images.
type Role string

const (
	RolePoster      Role = "poster"
	RoleBackdrop    Role = "backdrop"
	RoleThumbnail   Role = "thumbnail"
	RoleSquare      Role = "square"
	RoleEpisode     Role = "episode"
	RoleLibraryTile Role = "library_tile"
)

// ParseRole converts a user-supplied role name to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePoster:
		return RolePoster, nil
	case RoleBackdrop:
		return RoleBackdrop, nil
	case RoleThumbnail, "thumb":
		return RoleThumbnail, nil
	case RoleSquare:
		return RoleSquare, nil
	case RoleEpisode:
		return RoleEpisode, nil
	case RoleLibraryTile, "library":
		return RoleLibraryTile, nil
	default:
		return "", fmt.Errorf("unknown asset role: %q", s)
	}
}

// Request identifies one image wanted by the client: which item, and what
// the image is for.
type Request struct {
	ItemID string
	Role   Role
}

func (r Request) String() string {
	return string(r.Role) + ":" + r.ItemID
}

// ConnectionContext carries the server coordinates supplied by the
// authentication collaborator. A zero BaseURL means not connected, in which
// case resolution yields no candidates.
type ConnectionContext struct {
	BaseURL     string
	AccessToken string
}

// Connected reports whether a server base URL is available.
func (c ConnectionContext) Connected() bool {
	return c.BaseURL != ""
}

// Candidate is one concrete remote location for an image, part of an ordered
// fallback list. Earlier candidates are preferred.
type Candidate struct {
	URL     string
	Kind    ImageKind
	Width   int
	Height  int
	Quality int
}

// CandidateSpec describes one entry of a role's fallback chain before it is
// bound to an item and server.
type CandidateSpec struct {
	Kind   ImageKind
	Width  int
	Height int
}

// ParseCandidateSpec parses the "Kind@WxH" form used in configuration,
// e.g. "Primary@480x720".
func ParseCandidateSpec(s string) (CandidateSpec, error) {
	kind, dims, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return CandidateSpec{}, fmt.Errorf("candidate spec %q: want Kind@WxH", s)
	}

	var spec CandidateSpec
	switch ImageKind(kind) {
	case KindPrimary, KindBackdrop, KindThumb:
		spec.Kind = ImageKind(kind)
	default:
		return CandidateSpec{}, fmt.Errorf("candidate spec %q: unknown image kind %q", s, kind)
	}

	w, h, ok := strings.Cut(dims, "x")
	if !ok {
		return CandidateSpec{}, fmt.Errorf("candidate spec %q: want Kind@WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return CandidateSpec{}, fmt.Errorf("candidate spec %q: bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return CandidateSpec{}, fmt.Errorf("candidate spec %q: bad height", s)
	}
	spec.Width = width
	spec.Height = height
	return spec, nil
}

// Phase is the externally visible lifecycle stage of one load attempt.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseRecoverableError
	PhaseSuccess
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseRecoverableError:
		return "recoverable_error"
	case PhaseSuccess:
		return "success"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions will occur without an
// explicit external retry.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseExhausted
}

// Snapshot is the current observable state of one load attempt. Payload is
// only set in PhaseSuccess; Err carries the most recent failure and, in
// PhaseExhausted, the classification of the final one.
type Snapshot struct {
	Phase          Phase
	CandidateIndex int
	RetryCount     int
	Payload        []byte
	Width          int
	Height         int
	Err            error
}
