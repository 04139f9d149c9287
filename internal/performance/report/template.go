package report

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}} - load test report</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<style>
  :root {
    --bg: #0f1419; --panel: #1a2029; --line: #2c3440; --text: #e6e8eb;
    --muted: #8b95a3; --ok: #3fb950; --warn: #d29922; --bad: #f85149; --accent: #58a6ff;
  }
  * { box-sizing: border-box; }
  body { margin: 0; padding: 2rem; background: var(--bg); color: var(--text);
         font: 14px/1.5 -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; }
  main { max-width: 1200px; margin: 0 auto; }
  header { display: flex; justify-content: space-between; align-items: flex-start; margin-bottom: 1.5rem; }
  h1 { margin: 0; font-size: 1.6rem; }
  h2 { font-size: 1.1rem; margin: 0 0 .75rem; color: var(--accent); }
  .meta { color: var(--muted); font-size: .85rem; }
  .verdict { padding: .4rem 1rem; border-radius: 6px; font-weight: 600; }
  .verdict.pass { background: rgba(63,185,80,.15); color: var(--ok); }
  .verdict.fail { background: rgba(248,81,73,.15); color: var(--bad); }
  .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: .75rem; margin-bottom: 1.5rem; }
  .card, section { background: var(--panel); border: 1px solid var(--line); border-radius: 8px; padding: 1rem; }
  section { margin-bottom: 1.25rem; }
  .card .label { color: var(--muted); font-size: .75rem; text-transform: uppercase; }
  .card .value { font-size: 1.4rem; font-weight: 600; }
  table { width: 100%; border-collapse: collapse; font-variant-numeric: tabular-nums; }
  th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid var(--line); }
  th { color: var(--muted); font-weight: 500; font-size: .8rem; }
  td.num, th.num { text-align: right; }
  .ok { color: var(--ok); } .bad { color: var(--bad); } .warn { color: var(--warn); }
  .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(360px, 1fr)); gap: 1rem; }
  footer { color: var(--muted); font-size: .8rem; text-align: center; margin-top: 2rem; }
</style>
</head>
<body>
<main>
<header>
  <div>
    <h1>{{.Name}}</h1>
    {{if .Description}}<div class="meta">{{.Description}}</div>{{end}}
    <div class="meta">run {{.ID}} &middot; {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; {{duration .Duration}}{{if .Interrupted}} &middot; <span class="warn">interrupted</span>{{end}}</div>
  </div>
  <div class="verdict {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003; PASSED{{else}}&#10007; FAILED{{end}}</div>
</header>

{{with .Metrics}}
<div class="cards">
  <div class="card"><div class="label">Requests</div><div class="value">{{number .TotalRequests}}</div></div>
  <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .RPS}} req/s</div></div>
  <div class="card"><div class="label">Failed requests</div><div class="value">{{percent .ErrorRate}}</div></div>
  <div class="card"><div class="label">Checks</div><div class="value">{{percent .Checks.Rate}}</div></div>
  <div class="card"><div class="label">P95 latency</div><div class="value">{{latency .Latency.P95}}</div></div>
  <div class="card"><div class="label">Iterations</div><div class="value">{{number .Iterations.Total}}</div></div>
  <div class="card"><div class="label">Data received</div><div class="value">{{bytes .TotalBytes}}</div></div>
</div>
{{end}}

{{if .Error}}<section><h2>Error</h2><div class="bad">{{.Error}}</div></section>{{end}}

{{if .Thresholds}}
<section>
  <h2>Thresholds</h2>
  <table>
    <tr><th></th><th>Metric</th><th>Criterion</th><th>Actual</th></tr>
    {{range .Thresholds}}
    <tr>
      <td class="{{if .Passed}}ok{{else}}bad{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
      <td>{{.Metric}}</td><td>{{.Expression}}</td>
      <td>{{.Value}}{{if .Message}} <span class="bad">{{.Message}}</span>{{end}}</td>
    </tr>
    {{end}}
  </table>
</section>
{{end}}

{{if .Checks}}
<section>
  <h2>Checks</h2>
  <table>
    <tr><th>Group</th><th>Check</th><th class="num">Passes</th><th class="num">Fails</th><th class="num">Rate</th></tr>
    {{range .Checks}}
    <tr>
      <td>{{.Group}}</td><td>{{.Name}}</td>
      <td class="num">{{number .Passes}}</td><td class="num">{{number .Fails}}</td>
      <td class="num {{if eq .Fails 0}}ok{{else}}bad{{end}}">{{percent .Rate}}</td>
    </tr>
    {{end}}
  </table>
</section>
{{end}}

{{if .TimeSeries}}
<section>
  <h2>Over time</h2>
  <div class="charts">
    <canvas id="throughput"></canvas>
    <canvas id="latency"></canvas>
  </div>
</section>
{{end}}

{{with .Metrics}}
<section>
  <h2>Latency</h2>
  <table>
    <tr><th class="num">Min</th><th class="num">Mean</th><th class="num">P50</th><th class="num">P90</th><th class="num">P95</th><th class="num">P99</th><th class="num">Max</th></tr>
    <tr>
      <td class="num">{{latency .Latency.Min}}</td><td class="num">{{latency .Latency.Mean}}</td>
      <td class="num">{{latency .Latency.P50}}</td><td class="num">{{latency .Latency.P90}}</td>
      <td class="num">{{latency .Latency.P95}}</td><td class="num">{{latency .Latency.P99}}</td>
      <td class="num">{{latency .Latency.Max}}</td>
    </tr>
  </table>
</section>
{{end}}

{{define "stats"}}
<table>
  <tr><th>Name</th><th class="num">Requests</th><th class="num">Failed</th><th class="num">Avg</th><th class="num">P95</th><th class="num">P99</th><th class="num">Max</th></tr>
  {{range .}}
  <tr>
    <td>{{.Name}}</td><td class="num">{{number .Requests}}</td>
    <td class="num {{if gt .Failed 0}}bad{{end}}">{{number .Failed}} ({{percent .FailRate}})</td>
    <td class="num">{{latency .Latency.Mean}}</td><td class="num">{{latency .Latency.P95}}</td>
    <td class="num">{{latency .Latency.P99}}</td><td class="num">{{latency .Latency.Max}}</td>
  </tr>
  {{end}}
</table>
{{end}}

{{if .Endpoints}}<section><h2>Endpoints</h2>{{template "stats" .Endpoints}}</section>{{end}}
{{if .Groups}}<section><h2>Groups</h2>{{template "stats" .Groups}}</section>{{end}}

{{with .Metrics}}
<section>
  <h2>Iterations</h2>
  <table>
    <tr><th class="num">Total</th><th class="num">Complete</th><th class="num">Incomplete</th><th class="num">Failed</th><th class="num">Cancelled</th><th class="num">Avg duration</th></tr>
    <tr>
      <td class="num">{{number .Iterations.Total}}</td><td class="num ok">{{number .Iterations.Complete}}</td>
      <td class="num warn">{{number .Iterations.Incomplete}}</td><td class="num bad">{{number .Iterations.Failed}}</td>
      <td class="num">{{number .Iterations.Cancelled}}</td><td class="num">{{latency .Iterations.Duration.Mean}}</td>
    </tr>
  </table>
</section>
{{end}}

{{if .Skips}}
<section>
  <h2>Skipped steps</h2>
  <table>
    <tr><th>Step</th><th class="num">Skipped</th></tr>
    {{range .Skips}}<tr><td>{{.Step}}</td><td class="num warn">{{number .Count}}</td></tr>{{end}}
  </table>
</section>
{{end}}

{{if .Scenarios}}
<section>
  <h2>Scenarios</h2>
  <table>
    <tr><th>Name</th><th>Executor</th><th class="num">Duration</th><th class="num">VUs spawned</th><th>Error</th></tr>
    {{range $name, $s := .Scenarios}}
    <tr><td>{{$name}}</td><td>{{$s.Executor}}</td><td class="num">{{duration $s.Duration}}</td><td class="num">{{$s.SpawnedVUs}}</td><td class="bad">{{$s.Error}}</td></tr>
    {{end}}
  </table>
</section>
{{end}}

<footer>pvzload &middot; {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</footer>
</main>

{{if .TimeSeries}}
<script>
  const points = {{.TimeSeriesJSON}};
  const labels = points.map(p => new Date(p.t).toLocaleTimeString());
  const grid = { color: '#2c3440' };
  const ticks = { color: '#8b95a3' };

  new Chart(document.getElementById('throughput'), {
    type: 'line',
    data: {
      labels,
      datasets: [
        { label: 'req/s', data: points.map(p => p.rps), borderColor: '#58a6ff', yAxisID: 'y', tension: .2 },
        { label: 'VUs', data: points.map(p => p.vus), borderColor: '#d29922', yAxisID: 'vus', tension: .2 },
      ],
    },
    options: { scales: { x: { grid, ticks }, y: { grid, ticks }, vus: { position: 'right', grid: { display: false }, ticks } } },
  });

  new Chart(document.getElementById('latency'), {
    type: 'line',
    data: {
      labels,
      datasets: [
        { label: 'p50 ms', data: points.map(p => p.p50), borderColor: '#3fb950', tension: .2 },
        { label: 'p95 ms', data: points.map(p => p.p95), borderColor: '#d29922', tension: .2 },
        { label: 'p99 ms', data: points.map(p => p.p99), borderColor: '#f85149', tension: .2 },
      ],
    },
    options: { scales: { x: { grid, ticks }, y: { grid, ticks } } },
  });
</script>
{{end}}
</body>
</html>
`
