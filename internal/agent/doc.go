// Package agent provides the provider-agnostic LLM agent abstraction.
//
// # Architecture
//
// The package is built around the Architect interface, implemented by a
// closed set of provider variants:
//
//  1. AnthropicArchitect - Anthropic Messages API (anthropic-sdk-go)
//  2. OpenAIArchitect - OpenAI chat completions via eino; also serves DeepSeek and xAI
//  3. GeminiArchitect - Gemini API (genai)
//  4. OfflineArchitect - deterministic responses for tests and --offline runs
//
// Every variant builds its vendor client lazily, exactly once, on the first
// call. Provider failures are returned as *domain.ProviderCallError with a
// Retryable flag; Complete (the package function) retries transient ones.
//
// Example usage:
//
//	arch, err := agent.New(agent.PhaseConfig{
//	    Provider: agent.ProviderAnthropic,
//	    Model:    "claude-sonnet-4-5",
//	    APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, _, err := agent.Complete(ctx, arch, agent.Request{Prompt: "..."}, agent.RetryPolicy{Retries: 2})
//
// # Streaming
//
// Stream returns a channel of Chunk values that ends with ChunkMessageEnd or
// ChunkError. Collect drains a stream into a Response.
//
// # Tools
//
// ToolRegistry holds tool declarations and executors. RunToolLoop executes
// requested tools and feeds results back until the model stops asking.
package agent
