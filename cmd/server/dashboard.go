package main

import (
	"net/http"
)

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>errorfence</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #1f2937;
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1100px; margin: 0 auto; }
        h1 { color: white; text-align: center; margin-bottom: 24px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(160px, 1fr));
            gap: 16px;
            margin-bottom: 24px;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 20px;
        }
        .label {
            color: #6b7280;
            font-size: 0.8em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 8px;
        }
        .value { font-size: 2em; font-weight: bold; color: #111827; }
        .ok { color: #10b981; }
        .bad { color: #ef4444; }
        .warn { color: #f59e0b; }
        table { width: 100%; border-collapse: collapse; }
        th {
            text-align: left;
            padding: 10px;
            background: #f3f4f6;
            color: #6b7280;
            font-size: 0.8em;
            text-transform: uppercase;
        }
        td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
    </style>
</head>
<body>
    <div class="container">
        <h1>errorfence</h1>

        <div class="grid">
            <div class="card"><div class="label">Requests</div><div class="value" id="total">0</div></div>
            <div class="card"><div class="label">Admitted</div><div class="value ok" id="admitted">0</div></div>
            <div class="card"><div class="label">Throttled</div><div class="value bad" id="throttled">0</div></div>
            <div class="card"><div class="label">Unauthenticated</div><div class="value warn" id="unauthenticated">0</div></div>
            <div class="card"><div class="label">Tokens spent</div><div class="value" id="charges">0</div></div>
            <div class="card"><div class="label">Tokens refilled</div><div class="value" id="refilled">0</div></div>
        </div>

        <div class="card">
            <div class="label">Identities with the most failures</div>
            <table>
                <thead>
                    <tr><th>Identity label</th><th>Requests</th><th>Failures</th><th>Throttled</th><th>Remaining</th><th>Last seen</th></tr>
                </thead>
                <tbody id="top">
                    <tr><td colspan="6">Loading...</td></tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        async function refresh() {
            try {
                const data = await (await fetch('/stats')).json();
                for (const [id, key] of [['total', 'total_requests'], ['admitted', 'admitted'],
                        ['throttled', 'throttled'], ['unauthenticated', 'unauthenticated'],
                        ['charges', 'charges'], ['refilled', 'refilled_tokens']]) {
                    document.getElementById(id).textContent = data[key].toLocaleString();
                }

                const rows = (data.top_identities || []).map(s => ` + "`" + `
                    <tr>
                        <td><strong>${s.identity}</strong></td>
                        <td>${s.total_requests}</td>
                        <td>${s.charges}</td>
                        <td>${s.throttled}</td>
                        <td>${s.remaining_tokens}</td>
                        <td>${new Date(s.last_request_at).toLocaleTimeString()}</td>
                    </tr>` + "`" + `);
                document.getElementById('top').innerHTML =
                    rows.length ? rows.join('') : '<tr><td colspan="6">No requests yet</td></tr>';
            } catch (err) {
                console.error('Failed to fetch stats:', err);
            }
        }

        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
