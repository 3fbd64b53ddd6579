package genflow_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/spachava753/genflow"
)

// fakeGemini answers generateContent with a tool invocation first and with text
// once the tool result has been sent back.
func fakeGemini() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), "functionResponse") {
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"It is clear in Paris."}]},"finishReason":"STOP"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"lookupWeather","args":{"city":"Paris"}}}]},"finishReason":"STOP"}]}`)
	}))
}

func ExampleClient_GenerateContent() {
	srv := fakeGemini()
	defer srv.Close()

	client, err := genflow.New("my-api-key", genflow.ClientConfig{
		Model:       "gemini-2.5-flash",
		Temperature: genflow.Ptr(0.2),
	}, genflow.WithBaseURL(srv.URL))
	if err != nil {
		fmt.Println(err)
		return
	}

	weather, err := genflow.NewTool("lookupWeather", "Current conditions for a city",
		func(ctx context.Context, args struct {
			City string `json:"city"`
		}) (map[string]string, error) {
			fmt.Println("looking up", args.City)
			return map[string]string{"conditions": "clear"}, nil
		})
	if err != nil {
		fmt.Println(err)
		return
	}

	res, err := client.GenerateContent(context.Background(), "What is the weather in Paris?", &genflow.CallParams{
		Tools: []genflow.ToolDeclaration{weather},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.Text)
	fmt.Println("tool rounds:", res.Rounds)

	// Output:
	// looking up Paris
	// It is clear in Paris.
	// tool rounds: 1
}

func ExampleGenerateAs() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"name\":\"Ada\",\"age\":36}"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	client, err := genflow.New("my-api-key", genflow.ClientConfig{Model: "gemini-2.5-flash"}, genflow.WithBaseURL(srv.URL))
	if err != nil {
		fmt.Println(err)
		return
	}

	type Person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	p, err := genflow.GenerateAs[Person](context.Background(), client, "Extract: Ada, 36", nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s is %d\n", p.Name, p.Age)

	// Output:
	// Ada is 36
}
