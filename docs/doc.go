// Package docs provides generated OpenAPI documentation.
//
// docscan API
//
//	@title			docscan API
//	@version		1.0
//	@description	Document scanner: capture or pick an image, recognize its text, and follow the view state.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/docscan
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g ../cmd/docscan/serve.go -o ./swagger --parseDependency --parseInternal
