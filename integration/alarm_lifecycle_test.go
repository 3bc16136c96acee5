package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"hyperwatch/internal/store"
)

// checkEvent builds a check event for component/resource.
func checkEvent(component, resource string, state int) map[string]interface{} {
	return map[string]interface{}{
		"connector":      "nagios",
		"connector_name": "it",
		"event_type":     "check",
		"source_type":    "resource",
		"component":      component,
		"resource":       resource,
		"state":          state,
		"state_type":     1,
		"output":         fmt.Sprintf("state %d", state),
		"timestamp":      time.Now().Unix(),
	}
}

// postEvent posts ev and returns its routing key.
func postEvent(ev map[string]interface{}) string {
	status, result := call("POST", "/v1/events", ev)
	Expect(status).To(Equal(http.StatusAccepted))
	return result["data"].(map[string]interface{})["rk"].(string)
}

// alarmStatus returns the status of the alarm stored under rk, or -1.
func alarmStatus(rk string) float64 {
	status, result := call("GET", "/v1/alarms/"+rk, nil)
	if status != http.StatusOK {
		return -1
	}
	s, _ := result["data"].(map[string]interface{})["status"].(float64)
	return s
}

// historyLen returns the number of history entries of the alarm.
func historyLen(rk string) int {
	_, result := call("GET", "/v1/alarms/"+rk+"/history", nil)
	logs, _ := result["data"].([]interface{})
	return len(logs)
}

var _ = Describe("Alarm Lifecycle Integration", func() {
	Context("When a check goes critical and recovers quickly", func() {
		It("should open an ongoing alarm and then mark it stealthy", func() {
			rk := postEvent(checkEvent("db01", "disk", 2))

			Eventually(func() float64 { return alarmStatus(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(float64(1)))
			Eventually(func() int { return historyLen(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(1))

			postEvent(checkEvent("db01", "disk", 0))

			// The recovery arrives inside the stealthy window.
			Eventually(func() float64 { return alarmStatus(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(float64(2)))
			Eventually(func() int { return historyLen(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(2))
		})
	})

	Context("When the same state is reported again", func() {
		It("should not append to the history", func() {
			rk := postEvent(checkEvent("db02", "load", 1))
			Eventually(func() int { return historyLen(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(1))

			again := checkEvent("db02", "load", 1)
			again["output"] = "still warning"
			postEvent(again)

			// Only the changed output is written back to the alarm.
			Eventually(func() interface{} {
				_, result := call("GET", "/v1/alarms/"+rk, nil)
				return result["data"].(map[string]interface{})["output"]
			}).WithTimeout(5 * time.Second).Should(Equal("still warning"))

			Expect(historyLen(rk)).To(Equal(1))
			Expect(alarmStatus(rk)).To(Equal(float64(1)))
		})
	})

	Context("When a log event is ingested", func() {
		It("should write history without creating an alarm", func() {
			ev := checkEvent("app01", "", 0)
			ev["event_type"] = "log"
			ev["source_type"] = "component"
			delete(ev, "resource")
			rk := postEvent(ev)

			Eventually(func() int { return historyLen(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(1))
			Expect(alarmStatus(rk)).To(Equal(float64(-1)))
		})
	})

	Context("When a check event arrives for a new resource", func() {
		It("should register the component and resource entities", func() {
			rk := postEvent(checkEvent("web07", "http", 2))
			Eventually(func() float64 { return alarmStatus(rk) }).
				WithTimeout(5 * time.Second).Should(Equal(float64(1)))

			entities, err := recordStore.Find(context.Background(), store.CollectionEntities,
				store.Document{"type": "resource", "name": "http"}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(entities).To(HaveLen(1))
			Expect(entities[0]["component"]).To(Equal("web07"))
		})
	})
})

var _ = Describe("Event Filter Integration", Ordered, func() {
	var ruleIDs []string

	AfterAll(func() {
		for _, id := range ruleIDs {
			_, _ = doRequest("DELETE", "/v1/filter-rules/"+id, nil)
		}
		_, _ = doRequest("PUT", "/v1/filter-rules/default-action", map[string]interface{}{"action": "pass"})
		waitForBeat()
	})

	createRule := func(name string, priority int, filter map[string]interface{}, actions ...map[string]interface{}) {
		status, result := call("POST", "/v1/filter-rules", map[string]interface{}{
			"name":     name,
			"priority": priority,
			"mfilter":  filter,
			"actions":  actions,
		})
		Expect(status).To(Equal(http.StatusCreated))
		ruleIDs = append(ruleIDs, result["data"].(map[string]interface{})["_id"].(string))
	}

	It("should drop events matched by a drop rule", func() {
		createRule("drop lab hosts", 1,
			map[string]interface{}{"component": map[string]interface{}{"$regex": "^lab"}},
			map[string]interface{}{"type": "drop"},
		)
		waitForBeat()

		dropped := postEvent(checkEvent("lab01", "cpu", 2))
		kept := postEvent(checkEvent("prod01", "cpu", 2))

		Eventually(func() float64 { return alarmStatus(kept) }).
			WithTimeout(5 * time.Second).Should(Equal(float64(1)))
		Consistently(func() float64 { return alarmStatus(dropped) }).
			WithTimeout(time.Second).Should(Equal(float64(-1)))
	})

	It("should apply override actions before passing", func() {
		createRule("tag prod", 2,
			map[string]interface{}{"component": "prod02"},
			map[string]interface{}{"type": "override", "field": "output", "value": "rewritten"},
			map[string]interface{}{"type": "pass"},
		)
		waitForBeat()

		rk := postEvent(checkEvent("prod02", "mem", 2))
		Eventually(func() interface{} {
			status, result := call("GET", "/v1/alarms/"+rk, nil)
			if status != http.StatusOK {
				return nil
			}
			return result["data"].(map[string]interface{})["output"]
		}).WithTimeout(5 * time.Second).Should(Equal("rewritten"))
	})

	It("should drop unmatched events when the default action is drop", func() {
		status, _ := call("PUT", "/v1/filter-rules/default-action", map[string]interface{}{"action": "drop"})
		Expect(status).To(Equal(http.StatusOK))
		waitForBeat()

		dropped := postEvent(checkEvent("misc01", "cpu", 2))
		kept := postEvent(checkEvent("prod02", "swap", 2))

		Eventually(func() float64 { return alarmStatus(kept) }).
			WithTimeout(5 * time.Second).Should(Equal(float64(1)))
		Consistently(func() float64 { return alarmStatus(dropped) }).
			WithTimeout(time.Second).Should(Equal(float64(-1)))
	})
})
