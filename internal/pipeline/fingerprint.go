package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/crimson-sun/beacon/internal/model"
)

// globalErrorSignature is the catch-all bucket for errors that carry too
// little detail to distinguish causes; collapsing them is intentional.
const globalErrorSignature = "error\x00global"

var (
	hexRunRe   = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	digitRunRe = regexp.MustCompile(`[0-9]+`)
	spaceRunRe = regexp.MustCompile(`\s+`)
)

// Fingerprint derives the dedup signature that assigns an event to a stack.
// Errors fingerprint on exception kind plus primary location when one is
// known, falling back to the normalized message and finally to a global
// signature; every other type fingerprints on type, source and message.
func Fingerprint(ev *model.Event) string {
	if ev.Type == model.TypeError {
		return hash(errorSignature(ev))
	}
	return hash(string(ev.Type) + "\x00" + ev.Source + "\x00" + ev.Message)
}

func errorSignature(ev *model.Event) string {
	var kind, message, location string
	if ev.Error != nil {
		kind = ev.Error.Kind
		message = ev.Error.Message
		location = ev.Error.Location
	}
	if message == "" {
		message = ev.Message
	}

	if location != "" {
		return "error\x00" + kind + "\x00loc\x00" + location
	}
	if norm := normalizeMessage(message); norm != "" {
		return "error\x00" + kind + "\x00msg\x00" + norm
	}
	if kind != "" {
		return "error\x00kind\x00" + kind
	}
	return globalErrorSignature
}

// normalizeMessage strips the volatile parts of an error message (hex
// addresses, digit runs, casing, whitespace runs) so differently worded but
// undistinguishable errors land in one stack.
func normalizeMessage(msg string) string {
	msg = strings.ToLower(msg)
	msg = hexRunRe.ReplaceAllString(msg, "")
	msg = digitRunRe.ReplaceAllString(msg, "")
	msg = spaceRunRe.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}

func hash(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:])
}
