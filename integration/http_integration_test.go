package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// httpClient creates an HTTP client with sensible defaults.
func httpClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}

// doRequest performs an HTTP request and returns the response.
func doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return httpClient().Do(req)
}

// parseResponse parses JSON response into target.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// call performs a request and returns the status code and decoded envelope.
func call(method, path string, body interface{}) (int, map[string]interface{}) {
	resp, err := doRequest(method, path, body)
	Expect(err).NotTo(HaveOccurred())

	var result map[string]interface{}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return resp.StatusCode, nil
	}
	Expect(parseResponse(resp, &result)).To(Succeed())
	return resp.StatusCode, result
}

var _ = Describe("HTTP API", Ordered, func() {
	var ruleID string

	AfterAll(func() {
		if ruleID != "" {
			_, _ = doRequest("DELETE", "/v1/filter-rules/"+ruleID, nil)
		}
	})

	Describe("Health Check", func() {
		It("should return healthy status", func() {
			status, result := call("GET", "/healthz", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(result["data"]).To(HaveKeyWithValue("status", "healthy"))
		})

		It("should expose prometheus metrics", func() {
			resp, err := doRequest("GET", "/metrics", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("hyperwatch_"))
		})
	})

	Describe("Event intake", func() {
		It("should accept a valid event and return its routing key", func() {
			status, result := call("POST", "/v1/events", map[string]interface{}{
				"connector":      "nagios",
				"connector_name": "it",
				"event_type":     "check",
				"source_type":    "resource",
				"component":      "intake01",
				"resource":       "cpu",
				"state":          0,
			})
			Expect(status).To(Equal(http.StatusAccepted))
			Expect(result["data"]).To(HaveKeyWithValue("rk", "nagios.it.check.resource.intake01.cpu"))
		})

		It("should reject an event without identity fields", func() {
			status, result := call("POST", "/v1/events", map[string]interface{}{
				"connector": "nagios",
			})
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(result["error"]).To(HaveKeyWithValue("code", "VALIDATION_FAILED"))
		})
	})

	Describe("Filter Rules API", func() {
		It("should create a filter rule", func() {
			status, result := call("POST", "/v1/filter-rules", map[string]interface{}{
				"name":     "HTTP Test Rule",
				"priority": 10,
				"mfilter":  map[string]interface{}{"component": "never-seen"},
				"actions":  []map[string]interface{}{{"type": "drop"}},
			})
			Expect(status).To(Equal(http.StatusCreated))

			data := result["data"].(map[string]interface{})
			ruleID = data["_id"].(string)
			Expect(ruleID).NotTo(BeEmpty())
			Expect(data["name"]).To(Equal("HTTP Test Rule"))
		})

		It("should get the created filter rule", func() {
			status, result := call("GET", "/v1/filter-rules/"+ruleID, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(result["data"]).To(HaveKeyWithValue("priority", BeNumerically("==", 10)))
		})

		It("should list filter rules", func() {
			status, result := call("GET", "/v1/filter-rules", nil)
			Expect(status).To(Equal(http.StatusOK))

			data, ok := result["data"].([]interface{})
			Expect(ok).To(BeTrue())
			Expect(len(data)).To(BeNumerically(">=", 1))
		})

		It("should reject an invalid predicate", func() {
			status, _ := call("POST", "/v1/filter-rules", map[string]interface{}{
				"name":    "broken",
				"mfilter": `{"state": {"$unknown": 1}}`,
				"actions": []map[string]interface{}{{"type": "drop"}},
			})
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("should delete the filter rule", func() {
			status, _ := call("DELETE", "/v1/filter-rules/"+ruleID, nil)
			Expect(status).To(Equal(http.StatusNoContent))

			status, _ = call("GET", "/v1/filter-rules/"+ruleID, nil)
			Expect(status).To(Equal(http.StatusNotFound))
			ruleID = ""
		})
	})

	Describe("Alarms API", func() {
		It("should return 404 for an unknown alarm", func() {
			status, _ := call("GET", "/v1/alarms/unknown.alarm", nil)
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("should return an empty history for an unknown alarm", func() {
			status, result := call("GET", "/v1/alarms/unknown.alarm/history", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(result["data"]).To(BeEmpty())
		})
	})
})
