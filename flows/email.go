package flows

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/eric2umeh/techignite-jobs/board"
)

// DigestSubject is the subject line of every digest email.
const DigestSubject = "Latest Job Opportunities for you"

// BoardURL is the public listing page linked from the digest footer.
var BoardURL = "https://techignite.jobs/jobs"

var digestTmpl = template.Must(template.New("digest").Parse(`<div style="font-family: Arial, sans-serif; padding: 20px;">
  <h2>Latest Job Opportunities</h2>
{{- range .Listings}}
  <div style="margin-bottom: 20px; padding: 15px; border: 1px solid #eee; border-radius: 5px;">
    <h3>{{.Title}}</h3>
    <p style="margin: 5px 0;">{{.Company}} &middot; {{.Location}}</p>
    <p style="margin: 5px 0;">{{.Salary}}</p>
  </div>
{{- end}}
  <div style="margin-top: 30px; text-align: center;">
    <a href="{{.BoardURL}}" style="background-color: #007bff; padding: 10px 20px; text-decoration: none; color: white; font-weight: bold; border-radius: 5px;">View More Jobs</a>
  </div>
</div>`))

type digestListing struct {
	Title    string
	Company  string
	Location string
	Salary   string
}

// RenderDigest formats a digest email body for the given listings.
func RenderDigest(posts []*board.Post) string {
	data := struct {
		Listings []digestListing
		BoardURL string
	}{BoardURL: BoardURL}

	for _, p := range posts {
		data.Listings = append(data.Listings, digestListing{
			Title:    p.Title,
			Company:  p.Company,
			Location: p.Location,
			Salary:   fmt.Sprintf("$%s - $%s", formatAmount(p.SalaryFrom), formatAmount(p.SalaryTo)),
		})
	}

	var b strings.Builder
	if err := digestTmpl.Execute(&b, data); err != nil {
		// The template is static and the data is plain strings; execution
		// cannot fail at runtime.
		panic(err)
	}
	return b.String()
}

// formatAmount renders an integer dollar amount with thousands separators,
// e.g. 120000 -> "120,000".
func formatAmount(n int) string {
	s := fmt.Sprintf("%d", n)
	if neg := strings.HasPrefix(s, "-"); neg {
		return "-" + formatAmount(-n)
	}
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
