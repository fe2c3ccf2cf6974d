package chat

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jmuk/pagecrew/pkg/history"
)

// attachmentPattern matches @path tokens; a space in the path is escaped
// with a backslash, the same way the completer inserts it.
var attachmentPattern = regexp.MustCompile(`(^|\s)@((?:\\\s|\S)+)`)

// parseAttachments pulls the @path images out of the input. Paths are
// resolved under the working directory. Tokens that are not readable images
// are left in the text.
func (c *Chat) parseAttachments(input string) (string, []*history.Blob) {
	var images []*history.Blob
	text := attachmentPattern.ReplaceAllStringFunc(input, func(token string) string {
		m := attachmentPattern.FindStringSubmatch(token)
		path := strings.ReplaceAll(m[2], `\ `, " ")
		data, err := c.root.ReadFile(path)
		if err != nil {
			fmt.Fprintf(c.out, "Cannot attach %s: %v\n", path, err)
			return token
		}
		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			fmt.Fprintf(c.out, "%s is not an image (%s), leaving it as text.\n", path, mimeType)
			return token
		}
		images = append(images, &history.Blob{Data: data, MimeType: mimeType})
		return ""
	})
	return strings.TrimSpace(text), images
}
