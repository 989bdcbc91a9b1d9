package chat

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Segment is one renderable piece of a chat message: either text or an
// image, never both. IDs increase monotonically within a message so the
// renderer can diff incrementally; they carry no other meaning.
type Segment struct {
	ID   int
	Text string
	URL  string
}

// EmoteSpan is an emote occurrence already resolved to an image URL.
// Start and End are inclusive Unicode-scalar offsets into the message text.
type EmoteSpan struct {
	URL   string
	Start int
	End   int
}

// EmoteTable resolves a word to a third-party emote image, e.g. 7TV.
// Implementations are supplied by the embedding application.
type EmoteTable interface {
	LookupEmote(word string) (url string, ok bool)
}

// CheermoteTable resolves a cheer word like "cheer100" to an image and its
// bits amount.
type CheermoteTable interface {
	LookupCheer(word string) (url string, bits int, ok bool)
}

// segmentBuilder threads the monotonic segment id through all passes.
type segmentBuilder struct {
	nextID int
}

func (b *segmentBuilder) text(s string) Segment {
	seg := Segment{ID: b.nextID, Text: s}
	b.nextID++
	return seg
}

func (b *segmentBuilder) image(url string) Segment {
	seg := Segment{ID: b.nextID, URL: url}
	b.nextID++
	return seg
}

// words emits one segment per space-separated word, each keeping a single
// trailing space so the renderer can wrap words independently.
func (b *segmentBuilder) words(s string) []Segment {
	var segs []Segment
	for _, word := range strings.Fields(s) {
		segs = append(segs, b.text(word+" "))
	}
	return segs
}

// BuildSegments turns message text plus emote spans into an ordered segment
// list. Emote spans may arrive unsorted, overlapping, or out of range; no
// input makes this function fail. Out-of-range spans end emote processing
// for the message, overlapping spans are dropped individually, and every
// character outside a consumed span survives as text.
//
// When emotes is nil the whole text goes through the third-party table, and
// when bits is non-empty a final pass swaps cheer words for cheermote
// images. Re-running the cheer pass on its own output changes nothing.
func BuildSegments(text string, emotes []EmoteSpan, thirdParty EmoteTable, cheermotes CheermoteTable, bits string) []Segment {
	b := &segmentBuilder{}
	segments := b.buildEmoteSegments(text, emotes)
	segments = b.replaceThirdPartyEmotes(segments, thirdParty)
	if bits != "" {
		segments = b.replaceCheermotes(segments, cheermotes)
	}
	// Cheer replacement splices segments mid-list; renumber so ids follow
	// list order.
	for i := range segments {
		segments[i].ID = i
	}
	return segments
}

func (b *segmentBuilder) buildEmoteSegments(text string, emotes []EmoteSpan) []Segment {
	scalars := []rune(text)

	sorted := make([]EmoteSpan, len(emotes))
	copy(sorted, emotes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var segments []Segment
	cursor := 0
	for _, emote := range sorted {
		if emote.Start >= len(scalars) || emote.End >= len(scalars) {
			slog.Warn("Emote range past message end, ignoring remaining emotes",
				"start", emote.Start, "end", emote.End, "length", len(scalars))
			break
		}
		if emote.Start < cursor {
			// Overlaps a span already consumed.
			continue
		}
		segments = append(segments, b.words(string(scalars[cursor:emote.Start]))...)
		segments = append(segments, b.image(emote.URL))
		segments = append(segments, b.text(" "))
		cursor = emote.End + 1
	}
	if cursor < len(scalars) {
		segments = append(segments, b.words(string(scalars[cursor:]))...)
	}
	return segments
}

func (b *segmentBuilder) replaceThirdPartyEmotes(segments []Segment, table EmoteTable) []Segment {
	if table == nil {
		return segments
	}
	for i, seg := range segments {
		if seg.URL != "" {
			continue
		}
		url, ok := table.LookupEmote(strings.TrimSpace(seg.Text))
		if !ok {
			continue
		}
		segments[i] = Segment{ID: seg.ID, URL: url}
	}
	return segments
}

func (b *segmentBuilder) replaceCheermotes(segments []Segment, table CheermoteTable) []Segment {
	if table == nil {
		return segments
	}
	var replaced []Segment
	for _, seg := range segments {
		if seg.URL != "" {
			replaced = append(replaced, seg)
			continue
		}
		url, bits, ok := table.LookupCheer(strings.ToLower(strings.TrimSpace(seg.Text)))
		if !ok {
			replaced = append(replaced, seg)
			continue
		}
		replaced = append(replaced, b.image(url), b.text(strconv.Itoa(bits)+" "))
	}
	return replaced
}
