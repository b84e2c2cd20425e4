package utils

//run redis (serve mode with store: redis)
//docker run -p 6379:6379 -d redis

//run a local model for the unmetered provider
//ollama pull llava:7b

//swagger init
//swag init -g cmd/analyzer/main.go --parseDependency --parseInternal --dir ./ --output ./cmd/analyzer/docs
