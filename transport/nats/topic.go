package nats

import (
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/docrag"
)

func AddEndpoints(group micro.Group, endpoints docrag.EndpointSet) {
	group.AddEndpoint("ingest", IngestHandler(endpoints.Ingest))
	group.AddEndpoint("search", SearchHandler(endpoints.Search))
	group.AddEndpoint("answer", AnswerHandler(endpoints.Answer))
	group.AddEndpoint("reset", ResetHandler(endpoints.Reset))
	group.AddEndpoint("list_files", ListFilesHandler(endpoints.ListFiles))
	group.AddEndpoint("save_file", SaveFileHandler(endpoints.SaveFile))
	group.AddEndpoint("collection_info", CollectionInfoHandler(endpoints.CollectionInfo))
}
