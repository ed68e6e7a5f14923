// Package correlate matches inbound mail to tracked applications and infers
// a status hint from its wording.
package correlate

import (
	"regexp"
	"strings"

	"github.com/teemow/applytrack/internal/model"
)

// MatchedBy names the rule that produced a match.
type MatchedBy string

const (
	MatchNone         MatchedBy = ""
	MatchURL          MatchedBy = "url"
	MatchTitleCompany MatchedBy = "title_company"
	MatchRecipient    MatchedBy = "recipient"
)

// Result is the outcome of Correlate. StatusHint is empty when there is no
// match or the wording suggests nothing.
type Result struct {
	Application *model.ApplicationRecord
	StatusHint  model.Status
	MatchedBy   MatchedBy
}

// Matched reports whether an application was found.
func (r Result) Matched() bool { return r.Application != nil }

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// Correlate finds the application msg belongs to. Rules are tried in order
// and the first hit wins: a URL in the snippet, then job title or company in
// subject and body, then the application's contact address in To.
func Correlate(msg model.InboundMessage, apps []model.ApplicationRecord, jobs []model.Job) Result {
	app, by := match(msg, apps, jobs)
	if app == nil {
		return Result{}
	}
	return Result{
		Application: app,
		StatusHint:  StatusHint(msg.Subject + " " + msg.Body),
		MatchedBy:   by,
	}
}

func match(msg model.InboundMessage, apps []model.ApplicationRecord, jobs []model.Job) (*model.ApplicationRecord, MatchedBy) {
	if app := matchURL(msg.Snippet, apps, jobs); app != nil {
		return app, MatchURL
	}
	if app := matchTitleCompany(msg, apps); app != nil {
		return app, MatchTitleCompany
	}
	if app := matchRecipient(msg.To, apps); app != nil {
		return app, MatchRecipient
	}
	return nil, MatchNone
}

// ExtractURLs returns the http(s) URLs in text in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

func matchURL(snippet string, apps []model.ApplicationRecord, jobs []model.Job) *model.ApplicationRecord {
	for _, raw := range ExtractURLs(snippet) {
		u := strings.ToLower(raw)
		for _, job := range jobs {
			if job.URL == "" || !strings.Contains(u, strings.ToLower(job.URL)) {
				continue
			}
			if app := firstForJob(apps, job.ID); app != nil {
				return app
			}
		}
		for i := range apps {
			if apps[i].JobURL != "" && strings.Contains(strings.ToLower(apps[i].JobURL), u) {
				return &apps[i]
			}
		}
	}
	return nil
}

func firstForJob(apps []model.ApplicationRecord, jobID string) *model.ApplicationRecord {
	for i := range apps {
		if apps[i].JobID == jobID {
			return &apps[i]
		}
	}
	return nil
}

func matchTitleCompany(msg model.InboundMessage, apps []model.ApplicationRecord) *model.ApplicationRecord {
	text := strings.ToLower(msg.Subject + " " + msg.Body)
	for i := range apps {
		title := strings.ToLower(strings.TrimSpace(apps[i].JobTitle))
		company := strings.ToLower(strings.TrimSpace(apps[i].Company))
		if (title != "" && strings.Contains(text, title)) || (company != "" && strings.Contains(text, company)) {
			return &apps[i]
		}
	}
	return nil
}

func matchRecipient(to string, apps []model.ApplicationRecord) *model.ApplicationRecord {
	to = strings.ToLower(to)
	for i := range apps {
		contact := strings.ToLower(strings.TrimSpace(apps[i].ContactEmail))
		if contact != "" && strings.Contains(to, contact) {
			return &apps[i]
		}
	}
	return nil
}

// StatusHint infers a status from text. Interview wording beats an offer,
// which beats a rejection.
func StatusHint(text string) model.Status {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "interview"):
		return model.StatusInterviewing
	case strings.Contains(t, "offer"):
		return model.StatusOffer
	case strings.Contains(t, "reject"), strings.Contains(t, "regret"), strings.Contains(t, "not selected"):
		return model.StatusRejected
	}
	return ""
}
