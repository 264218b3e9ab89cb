package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/protobuf/proto"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. A validate request carries one short credential code.
const maxRequestBody = 4096

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload. The gate controller sends "application/x-protobuf".
func isProtobuf(r *http.Request) bool {
	return isProtobufType(r.Header.Get("Content-Type"))
}

// acceptsProtobuf reports whether a bodiless request (the command poll)
// asked for a protobuf reply.
func acceptsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isProtobufType(part) {
			return true
		}
	}
	return false
}

func isProtobufType(v string) bool {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return mt == "application/x-protobuf" ||
		mt == "application/protobuf" ||
		mt == "application/octet-stream"
}

// readProto reads the request body and unmarshals it into msg.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
