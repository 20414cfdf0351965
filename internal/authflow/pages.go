package authflow

import (
	"fmt"
	"html"
	"net/http"
)

// setSecurityHeaders sets recommended security headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

// renderApprovalPage renders the approval surface. The encoded pending
// state rides along as a hidden form field and comes back on submission.
func (c *Controller) renderApprovalPage(w http.ResponseWriter, clientID, scope, stateToken string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	safeClientID := html.EscapeString(clientID)
	safeScope := html.EscapeString(scope)
	safeState := html.EscapeString(stateToken)

	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Connect Your Brokerage - tradegate</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%%, #16213e 50%%, #0f3460 100%%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #e8e8e8;
        }
        .container {
            text-align: center;
            padding: 3rem;
            background: rgba(255, 255, 255, 0.05);
            border-radius: 16px;
            border: 1px solid rgba(255, 255, 255, 0.1);
            max-width: 500px;
            margin: 1rem;
        }
        h1 { font-size: 1.75rem; font-weight: 600; margin-bottom: 0.5rem; color: #fff; }
        .client-name { color: #00d4aa; font-weight: 500; }
        .scope { color: #a0a0a0; font-family: monospace; }
        p { color: #a0a0a0; line-height: 1.6; margin-top: 1rem; }
        button {
            margin-top: 2rem;
            padding: 0.75rem 2.5rem;
            font-size: 1rem;
            font-weight: 600;
            color: #fff;
            background: linear-gradient(135deg, #00d4aa 0%%, #00a896 100%%);
            border: none;
            border-radius: 8px;
            cursor: pointer;
        }
        .footer {
            margin-top: 2rem;
            padding-top: 1.5rem;
            border-top: 1px solid rgba(255, 255, 255, 0.1);
            font-size: 0.875rem;
            color: #666;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Connect Your Brokerage</h1>
        <p><span class="client-name">%s</span> is requesting access to your brokerage account.</p>
        <p>Requested scope: <span class="scope">%s</span></p>
        <p>Approving sends you to your brokerage to sign in and authorize the connection.</p>
        <form method="POST" action="/auth/approve">
            <input type="hidden" name="state" value="%s">
            <button type="submit">Approve and Continue</button>
        </form>
        <div class="footer">
            Powered by tradegate
        </div>
    </div>
</body>
</html>`, safeClientID, safeScope, safeState)

	w.Write([]byte(htmlContent))
}
