package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
)

type restClient struct {
	rest      *resty.Client
	serverURL string

	serverInfo common.InfoResponse
}

func createRestClient(serverURL string) *restClient {
	client := new(restClient)
	client.serverURL = strings.TrimRight(serverURL, "/")
	client.rest = resty.New().SetTimeout(10 * time.Second)
	return client
}

// checkServer fetches /info and makes sure the server speaks our API version
func (r *restClient) checkServer() error {
	if err := r.get("/info", &r.serverInfo); err != nil {
		return err
	}
	if r.serverInfo.API != common.APIVersion {
		return fmt.Errorf("server %s %s speaks API v%d, expected v%d",
			r.serverInfo.Software, r.serverInfo.Version, r.serverInfo.API, common.APIVersion)
	}

	log.WithFields(log.Fields{
		"software": r.serverInfo.Software,
		"version":  r.serverInfo.Version,
	}).Info("Server is compatible")
	return nil
}

func (r *restClient) stats() (common.StatsResponse, error) {
	var stats common.StatsResponse
	err := r.get("/stats", &stats)
	return stats, err
}

func (r *restClient) results(user string) (common.TallyResponse, error) {
	var tally common.TallyResponse
	err := r.get("/results/"+user, &tally)
	return tally, err
}

func (r *restClient) get(path string, out interface{}) error {
	url := r.serverURL + path
	response, err := r.rest.R().Get(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Warn("REST request failed")
		return err
	} else if response.StatusCode() != http.StatusOK {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.String(),
		}).Warn("REST request rejected")
		return fmt.Errorf("GET %s: unexpected status %d", url, response.StatusCode())
	}

	if err := json.Unmarshal(response.Body(), out); err != nil {
		log.WithFields(log.Fields{
			"url":  url,
			"body": response.String(),
		}).WithError(err).Error("Failed to decode JSON response")
		return err
	}
	return nil
}
