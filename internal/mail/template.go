package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// VerificationSubject is the subject line of the confirmation email
const VerificationSubject = "Your intelliTest confirmation code"

var verificationTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="background:#0F0523;padding:40px;font-family:'Segoe UI',system-ui,sans-serif;">
  <div style="max-width:400px;margin:0 auto;background:#1A0B2E;border-radius:12px;padding:32px;">
    <div style="color:#7C3AED;font-size:40px;font-weight:700;text-align:center;margin-bottom:24px;">intelliTest</div>
    <p style="color:#E9D5FF;line-height:1.6;">
      Thanks for registering! Use the following confirmation code to activate your account:
    </p>
    <div style="background:#2D0A57;padding:24px;border-radius:8px;text-align:center;margin:24px 0;">
      <span style="color:#A78BFA;font-size:42px;letter-spacing:8px;font-weight:600;">{{.Code}}</span>
    </div>
    <p style="color:#C4B5FD;font-size:14px;">
      The code is valid for 15 minutes.<br>
      Never share this code with anyone.
    </p>
    <div style="color:#6B46C1;font-size:12px;text-align:center;margin-top:32px;">
      The intelliTest team<br>
      <span style="font-size:10px;opacity:0.8;">This is an automated message, please do not reply.</span>
    </div>
  </div>
</body>
</html>`))

// RenderVerification renders the confirmation-code email body
func RenderVerification(code string) (string, error) {
	var buf bytes.Buffer
	if err := verificationTmpl.Execute(&buf, struct{ Code string }{Code: code}); err != nil {
		return "", fmt.Errorf("render verification mail: %w", err)
	}
	return buf.String(), nil
}
