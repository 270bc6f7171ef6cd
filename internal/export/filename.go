package export

import (
	"strings"
	"time"
)

// DateFormat is the tr-TR short date layout used in export file names
const DateFormat = "02.01.2006"

const fallbackName = "belge"

var nameReplacer = strings.NewReplacer(
	" ", "_",
	"/", "-",
	"\\", "-",
)

// FileName returns "<title with spaces as underscores>_<dd.mm.yyyy>.pdf" for
// the local date of date. Path separators in the title become dashes so the
// name always stays inside the export directory.
func FileName(title string, date time.Time) string {
	name := nameReplacer.Replace(title)
	if strings.TrimSpace(title) == "" {
		name = fallbackName
	}
	return name + "_" + date.Local().Format(DateFormat) + ".pdf"
}
