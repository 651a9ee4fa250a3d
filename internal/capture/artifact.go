package capture

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Characters that are unsafe in file names on at least one supported
// filesystem. Replaced rather than stripped so names stay distinguishable.
var unsafeFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// artifactName derives the output file name for a capture:
// "<Name>_YYYY-MM-DD_HH-mm.<ext>", minute resolution, local to the
// configured timezone (ts must already be in that zone).
func artifactName(showName string, ts time.Time, ext string) string {
	safe := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(showName), "_")
	if safe == "" {
		safe = "recording"
	}
	return fmt.Sprintf("%s_%s.%s", safe, ts.Format("2006-01-02_15-04"), ext)
}
