/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/skylable/aes256filter/internal/logging"
)

func TestNoticeIsPrefixedAndFormatted(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf)

	l.Notice("first upload to %q, set the volume password now", "vol1")

	out := buf.String()
	// The text handler quotes the msg value and escapes the %q quotes.
	if !strings.Contains(out, logging.Prefix+`first upload to \"vol1\", set the volume password now`) {
		t.Fatalf("output missing expected prefixed, formatted message: %q", out)
	}
	if !strings.Contains(out, "level=INFO") {
		t.Fatalf("Notice did not log at info level: %q", out)
	}
}

func TestWarningLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf)

	l.Warning("can't write key file %s: %v", "/tmp/key", "disk full")

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("Warning did not log at warn level: %q", out)
	}
	if !strings.Contains(out, logging.Prefix+"can't write key file /tmp/key: disk full") {
		t.Fatalf("output missing expected message: %q", out)
	}
}

func TestErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf)

	l.Error("authentication failed for block %d", 7)

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") {
		t.Fatalf("Error did not log at error level: %q", out)
	}
}

func TestNilLoggerIsSilentlyUsable(t *testing.T) {
	var l *logging.Logger
	// A nil *Logger must never panic: a caller that passes WithLogger(nil)
	// leaves the config's logger field nil.
	l.Notice("should not panic")
	l.Warning("should not panic")
	l.Error("should not panic")
}

func TestNoArgsMessageIsNotTreatedAsFormatString(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(&buf)

	l.Notice("100% done")

	out := buf.String()
	if !strings.Contains(out, "100% done") {
		t.Fatalf("message with a literal %% and no args was mangled: %q", out)
	}
}
