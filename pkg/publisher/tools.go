package publisher

import (
	"regexp"
	"strings"
)

// ToolServers returns the tool server configuration handed to the
// generator CLI for the assemble-and-publish session. The CLI connects
// to the workspace MCP endpoint directly; this process never proxies
// the publish call.
func (c *Client) ToolServers() map[string]any {
	return map[string]any{
		"workspace": map[string]any{
			"type": "http",
			"url":  c.baseURL + "/mcp",
			"headers": map[string]string{
				"Authorization": "Bearer " + c.token,
			},
		},
	}
}

// AllowedTools returns the only tool names the assembler session may
// call. Everything else the CLI could reach stays blocked.
func (c *Client) AllowedTools() []string {
	return []string{ToolCreatePage, ToolUpdatePage}
}

// pageIDPattern matches the trailing 32-hex page id once dashes are
// stripped from a workspace URL.
var pageIDPattern = regexp.MustCompile(`([0-9a-f]{32})\s*$`)

// PageIDFromURL recovers the page id from a published page URL so the
// validator can push corrected content back to the same page.
func PageIDFromURL(url string) (string, bool) {
	m := pageIDPattern.FindStringSubmatch(strings.ReplaceAll(url, "-", ""))
	if m == nil {
		return "", false
	}
	return m[1], true
}
