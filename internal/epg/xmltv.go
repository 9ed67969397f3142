// SPDX-License-Identifier: MIT

// Package epg reads XMLTV listings files.
package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

// maxXMLSize bounds a single XMLTV document.
const maxXMLSize = 50 * 1024 * 1024

// TV is the XMLTV root element.
type TV struct {
	XMLName   xml.Name    `xml:"tv"`
	Generator string      `xml:"generator-info-name,attr,omitempty"`
	Channels  []Channel   `xml:"channel"`
	Programs  []Programme `xml:"programme"`
}

type Channel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
}

type Programme struct {
	Start      string       `xml:"start,attr"`
	Stop       string       `xml:"stop,attr"`
	Channel    string       `xml:"channel,attr"`
	ProgramID  string       `xml:"program-id,attr,omitempty"`
	Title      Text         `xml:"title"`
	SubTitle   Text         `xml:"sub-title,omitempty"`
	Desc       string       `xml:"desc,omitempty"`
	Categories []Text       `xml:"category,omitempty"`
	EpisodeNum []EpisodeNum `xml:"episode-num,omitempty"`
}

// Text is a localized character data element.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type EpisodeNum struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:",chardata"`
}

// Category returns the first category, or "".
func (p Programme) Category() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return strings.TrimSpace(p.Categories[0].Value)
}

// Decode reads one XMLTV document. Entity expansion is disabled and input is
// capped at 50MB.
func Decode(r io.Reader) (*TV, error) {
	dec := xml.NewDecoder(io.LimitReader(r, maxXMLSize))
	dec.Strict = true
	dec.Entity = make(map[string]string)

	var doc TV
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	return &doc, nil
}

// ParseFile opens and decodes an XMLTV file.
func ParseFile(path string) (*TV, error) {
	path = filepath.Clean(path)
	// path originates from operator configuration or the CLI
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Encode writes doc with an XML header.
func Encode(w io.Writer, doc *TV) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}

var (
	suffix = regexp.MustCompile(`\s+(hd|uhd|4k|austria|österreich|oesterreich|at|de|ch)$`)
	space  = regexp.MustCompile(`\s+`)
)

func normalize(s string) string {
	s = unorm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	// Lowercasing can produce new combining sequences.
	s = unorm.NFC.String(s)

	// Remove suffixes repeatedly ("Ch HD at").
	for {
		before := s
		s = suffix.ReplaceAllString(s, "")
		if s == before {
			break
		}
	}

	s = space.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NameKey generates a normalized key from a channel name for matching.
func NameKey(s string) string { return normalize(s) }

// NameToID returns map[nameKey]=channelID over every display name in doc.
func NameToID(doc *TV) map[string]string {
	out := make(map[string]string, len(doc.Channels))
	for _, ch := range doc.Channels {
		if ch.ID == "" {
			continue
		}
		for _, displayName := range ch.DisplayName {
			if key := normalize(displayName); key != "" {
				out[key] = ch.ID
			}
		}
	}
	return out
}
