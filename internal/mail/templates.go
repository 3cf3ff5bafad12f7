package mail

import (
	"net/url"
	"strings"

	"github.com/hoisie/mustache"
)

const layout = `<!DOCTYPE html>
<html lang="fr">
<body style="font-family: Arial, sans-serif; color: #1f2937;">
{{{body}}}
<p style="color:#6b7280;font-size:12px;">Ctonjob</p>
</body>
</html>`

const recruiterConfirmationBody = `<p>Bonjour {{contact_name}},</p>
<p>Merci d'avoir inscrit <strong>{{company_name}}</strong> sur Ctonjob.</p>
<p>Pour confirmer votre compte recruteur, cliquez sur le lien ci-dessous :</p>
<p><a href="{{link}}">Confirmer mon compte</a></p>
<p>Ce lien expire dans {{ttl_hours}} heures et ne peut être utilisé qu'une seule fois.</p>`

const recruiterDecisionBody = `<p>Bonjour,</p>
{{#approved}}<p>Votre compte recruteur <strong>{{company_name}}</strong> a été validé. Vous pouvez dès maintenant publier vos offres.</p>{{/approved}}
{{^approved}}<p>Votre demande de compte recruteur pour <strong>{{company_name}}</strong> n'a pas été retenue.</p>{{/approved}}`

const applicationDecisionBody = `<p>Bonjour {{full_name}},</p>
<p>Votre candidature pour le poste <strong>{{job_title}}</strong> est désormais : <strong>{{status_label}}</strong>.</p>
{{#rejection_message}}<p>Message du recruteur :</p><blockquote>{{rejection_message}}</blockquote>{{/rejection_message}}`

func render(body string, data map[string]any) string {
	inner := mustache.Render(body, data)
	return mustache.Render(layout, map[string]any{"body": inner})
}

// ConfirmationLink builds "<siteURL>/recruiter-confirm?token=<token>".
func ConfirmationLink(siteURL, token string) string {
	return strings.TrimRight(siteURL, "/") + "/recruiter-confirm?token=" + url.QueryEscape(token)
}

// RecruiterConfirmation 渲染招聘方确认邮件。
func RecruiterConfirmation(to, contactName, companyName, link string, ttlHours int) Message {
	return Message{
		To:      to,
		ToName:  contactName,
		Subject: "Confirmez votre compte recruteur",
		HTML: render(recruiterConfirmationBody, map[string]any{
			"contact_name": contactName,
			"company_name": companyName,
			"link":         link,
			"ttl_hours":    ttlHours,
		}),
	}
}

// RecruiterDecision 渲染审核结果邮件。
func RecruiterDecision(to, companyName string, approved bool) Message {
	subject := "Votre compte recruteur a été validé"
	if !approved {
		subject = "Votre demande de compte recruteur"
	}
	return Message{
		To:      to,
		Subject: subject,
		HTML: render(recruiterDecisionBody, map[string]any{
			"company_name": companyName,
			"approved":     approved,
		}),
	}
}

// ApplicationDecision 渲染申请结果邮件；rejectionMessage 为空时不显示留言段落。
func ApplicationDecision(to, fullName, jobTitle, statusLabel, rejectionMessage string) Message {
	data := map[string]any{
		"full_name":    fullName,
		"job_title":    jobTitle,
		"status_label": statusLabel,
	}
	if strings.TrimSpace(rejectionMessage) != "" {
		data["rejection_message"] = rejectionMessage
	}
	return Message{
		To:      to,
		ToName:  fullName,
		Subject: "Mise à jour de votre candidature",
		HTML:    render(applicationDecisionBody, data),
	}
}
