package provider

const (
	// ProviderOpenAI identifies OpenAI API
	ProviderOpenAI = "openai"

	// ProviderOllama identifies local Ollama API
	ProviderOllama = "ollama"

	// ProviderGeminiAI identifies Google Gemini API
	ProviderGeminiAI = "gemini"

	// ProviderBedrockClaude identifies AWS Bedrock API
	ProviderBedrockClaude = "bedrock/claude"

	// ProviderVertexAIClaude identifies Vertex AI Claude API
	ProviderVertexAIClaude = "vertex/claude"

	// ProviderInceptionLabs identifies InceptionLabs API
	ProviderInceptionLabs = "inceptionlabs"
)
