package claude

const claudeEndpoint = "https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:streamRawPredict"
const defaultLocation = "us-east5"
const defaultAnthropicVersion = "vertex-2023-10-16"
