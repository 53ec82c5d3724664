// Package server serves a minimal browser page for exercising the wire
// protocol by hand.
package server

import (
	"fmt"
	"log"
	"net/http"
)

// TestPageHandler serves an HTML page that can register, log in, open a
// WebSocket session, and send raw protocol frames.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>PrivChat Protocol Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #frames { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; font-family: monospace; font-size: 12px; }
        input { width: 220px; padding: 5px; margin-right: 6px; }
        #frameInput { width: 560px; }
        button { padding: 5px 12px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>PrivChat Protocol Test</h1>
    <div>
        <input id="email" placeholder="Email">
        <input id="password" placeholder="Password" type="password">
        <button onclick="register()">Register</button>
        <button onclick="login()">Login</button>
        <button onclick="connect()">Connect</button>
    </div>
    <div style="margin-top:8px">
        <input id="frameInput" placeholder='{"type":"conversation.list","requestId":"1"}'>
        <button onclick="sendFrame()">Send</button>
    </div>
    <div id="frames"></div>
    <script>
        let ws = null, token = null;
        const framesDiv = document.getElementById('frames');
        function show(prefix, text) {
            const el = document.createElement('div');
            el.textContent = prefix + ' ' + text;
            framesDiv.appendChild(el);
            framesDiv.scrollTop = framesDiv.scrollHeight;
        }
        async function account(path) {
            const body = JSON.stringify({
                email: document.getElementById('email').value,
                password: document.getElementById('password').value
            });
            const res = await fetch(path, {method: 'POST', body});
            const data = await res.json();
            show('<', JSON.stringify(data));
            if (data.token) token = data.token;
        }
        function register() { account('/register'); }
        function login() { account('/login'); }
        function connect() {
            if (!token) { show('!', 'register or login first'); return; }
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => {
                const frame = JSON.stringify({type: 'auth', requestId: 'auth-1', payload: {token}});
                ws.send(frame);
                show('>', frame);
            };
            ws.onmessage = (e) => show('<', e.data);
            ws.onclose = () => { show('!', 'connection closed'); ws = null; };
        }
        function sendFrame() {
            const raw = document.getElementById('frameInput').value;
            if (ws && ws.readyState === WebSocket.OPEN) { ws.send(raw); show('>', raw); }
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
