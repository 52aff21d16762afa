package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	out := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			out.WriteRune(c)
		}
	}
	return out.String()
}

// CleanText collapses a scraped text node into a single trimmed line.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// CellTexts returns the cleaned text of every `td` in a table row
// selection, in document order.
func CellTexts(row *goquery.Selection) []string {
	var cells []string
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, CleanText(cell.Text()))
	})
	return cells
}
