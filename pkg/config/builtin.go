package config

// GetBuiltinServices returns the built-in service catalog.
// User-defined services in services.yaml override entries with the same name.
func GetBuiltinServices() map[string]*ServiceConfig {
	return map[string]*ServiceConfig{
		"coingecko": {
			Name:        "coingecko",
			Description: "Cryptocurrency market data: prices, trends, token metadata",
			Transport: TransportConfig{
				Type:    TransportTypeStdio,
				Command: "npx",
				Args:    []string{"-y", "@coingecko/coingecko-mcp"},
			},
			AuthRequired:  false,
			DeclaredTools: []string{"get_price", "get_market_chart", "search_coins"},
		},
		"twitter": {
			Name:        "twitter",
			Description: "Twitter/X: fetch user tweets, search, post tweets",
			Transport: TransportConfig{
				Type:    TransportTypeStdio,
				Command: "npx",
				Args:    []string{"-y", "@enescinar/twitter-mcp"},
			},
			AuthRequired: true,
			AuthParams: []AuthParam{
				{EnvVar: "TWITTER_API_KEY", Key: "api_key", Aliases: []string{"TWITTER_API_KEY"}, Required: true},
				{EnvVar: "TWITTER_API_SECRET", Key: "api_secret", Aliases: []string{"TWITTER_API_SECRET"}, Required: true},
			},
			DeclaredTools: []string{"get_user_tweets", "search_tweets", "post_tweet"},
		},
		"github": {
			Name:        "github",
			Description: "GitHub: repositories, issues, pull requests",
			Transport: TransportConfig{
				Type:    TransportTypeStdio,
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-github"},
			},
			AuthRequired: true,
			AuthParams: []AuthParam{
				{EnvVar: "GITHUB_PERSONAL_ACCESS_TOKEN", Key: "token", Aliases: []string{"GITHUB_TOKEN"}, Required: true},
			},
		},
	}
}
