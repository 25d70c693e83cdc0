package utils

import (
	"fmt"
	"log"

	"lms/config"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendEmail delivers a single HTML email through SendGrid. Callers on the
// webhook/callback paths invoke this in a goroutine; a failure here must
// never roll back the state transition that triggered it.
func SendEmail(to string, subject string, htmlBody string) error {
	if config.AppConfig.SendGridAPIKey == "" {
		log.Printf("SendGrid not configured, skipping email to %s (%s)", to, subject)
		return nil
	}

	from := mail.NewEmail("AI Bootcamp", config.AppConfig.EmailSender)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, "", htmlBody)

	client := sendgrid.NewSendClient(config.AppConfig.SendGridAPIKey)
	resp, err := client.Send(message)
	if err != nil {
		log.Printf("Error sending email to %s: %v", to, err)
		return err
	}
	if resp.StatusCode >= 400 {
		log.Printf("SendGrid rejected email to %s: %d %s", to, resp.StatusCode, resp.Body)
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

// HTML wrapper shared by all notification emails
func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; box-shadow: 0 4px 15px rgba(0,0,0,0.05); }
			.header { background-color: #00004D; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #00004D; line-height: 1.6; }
			.content h2 { color: #00004D; margin-top: 0; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; border-top: 1px solid #E0E0E0; }
			.btn { display: inline-block; padding: 12px 24px; background-color: #d7b56d; color: #FFFFFF; text-decoration: none; border-radius: 4px; font-weight: bold; margin-top: 20px; }
			.info-box { background: #E8F0FE; padding: 15px; border-radius: 4px; border-left: 4px solid #d7b56d; margin: 20px 0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header">
				<h1>AI BOOTCAMP</h1>
			</div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">
				&copy; 2026 AI Bootcamp. All rights reserved.
			</div>
		</div>
	</body>
	</html>
	`, title, bodyContent)
}

// --- Triggers ---

// SendWelcomeEmail is fired after a completed payment creates the enrollment
func SendWelcomeEmail(email, name string) {
	subject := "Welcome to the AI Bootcamp"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your payment was received and your enrollment is confirmed. Welcome aboard!</p>
		<p>You can now log in and start with the first module of the course.</p>
		<div class="info-box">
			<strong>Next Steps:</strong> Head to your dashboard and open Module 1.
		</div>
	`, name)

	go SendEmail(email, subject, getEmailTemplate("Enrollment Confirmed", body))
}

// SendSignatureConfirmationEmail confirms receipt of the enrollment signature
func SendSignatureConfirmationEmail(email, name string) {
	subject := "Signature Received"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>We have received your signed enrollment agreement. A copy is stored with your enrollment record.</p>
	`, name)

	go SendEmail(email, subject, getEmailTemplate("Signature Received", body))
}

// SendCourseCompletionEmail delivers the certificate link after completion
func SendCourseCompletionEmail(email, name, certificateURL, certificateNumber string) {
	subject := "Congratulations - Course Completed!"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>You have completed the course. Your certificate (<strong>%s</strong>) is ready.</p>
		<div style="margin: 30px 0;">
			<a href="%s" class="btn">Download Certificate</a>
		</div>
		<p>You can verify this certificate at any time using its certificate number.</p>
	`, name, certificateNumber, certificateURL)

	go SendEmail(email, subject, getEmailTemplate("Course Completed", body))
}
