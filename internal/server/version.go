package server

// Version is the service version reported by the info endpoint. The serve
// command overwrites it with the build version before starting the server.
var Version = "dev"
